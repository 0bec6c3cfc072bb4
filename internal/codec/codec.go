// internal/codec/codec.go
//
// Package codec holds the pure, stateless byte <-> value conversions for the
// S7 data types the gateway understands. Nothing here touches the network;
// these functions only ever see a byte slice and an offset.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// Erros do codec
var (
	ErrBufferTooShort = errors.New("buffer menor que o tamanho exigido pelo tipo")
	ErrInvalidBit     = errors.New("bit_index deve estar entre 0 e 7")
	ErrEncoding       = errors.New("valor de string não pôde ser codificado em GBK dentro do tamanho declarado")
)

// DecodeBool lê o bit bitIndex do primeiro byte de buf.
func DecodeBool(buf []byte, bitIndex int) (bool, error) {
	if bitIndex < 0 || bitIndex > 7 {
		return false, ErrInvalidBit
	}
	if len(buf) < 1 {
		return false, ErrBufferTooShort
	}
	return (buf[0]>>uint(bitIndex))&0x01 == 1, nil
}

// EncodeBool define ou limpa o bit bitIndex do byte buf[0], preservando os
// demais bits do mesmo byte.
func EncodeBool(buf []byte, bitIndex int, value bool) error {
	if bitIndex < 0 || bitIndex > 7 {
		return ErrInvalidBit
	}
	if len(buf) < 1 {
		return ErrBufferTooShort
	}
	if value {
		buf[0] |= 1 << uint(bitIndex)
	} else {
		buf[0] &^= 1 << uint(bitIndex)
	}
	return nil
}

// DecodeInt lê um INT (16 bits, com sinal, big-endian) a partir de buf[0:2].
func DecodeInt(buf []byte) (int16, error) {
	if len(buf) < 2 {
		return 0, ErrBufferTooShort
	}
	return int16(binary.BigEndian.Uint16(buf)), nil
}

// EncodeInt escreve v em buf[0:2].
func EncodeInt(buf []byte, v int16) error {
	if len(buf) < 2 {
		return ErrBufferTooShort
	}
	binary.BigEndian.PutUint16(buf, uint16(v))
	return nil
}

// DecodeDInt lê um DINT (32 bits, com sinal, big-endian) a partir de buf[0:4].
func DecodeDInt(buf []byte) (int32, error) {
	if len(buf) < 4 {
		return 0, ErrBufferTooShort
	}
	return int32(binary.BigEndian.Uint32(buf)), nil
}

// EncodeDInt escreve v em buf[0:4].
func EncodeDInt(buf []byte, v int32) error {
	if len(buf) < 4 {
		return ErrBufferTooShort
	}
	binary.BigEndian.PutUint32(buf, uint32(v))
	return nil
}

// DecodeReal lê um REAL (IEEE-754 32 bits, big-endian) a partir de buf[0:4].
func DecodeReal(buf []byte) (float32, error) {
	if len(buf) < 4 {
		return 0, ErrBufferTooShort
	}
	return math.Float32frombits(binary.BigEndian.Uint32(buf)), nil
}

// EncodeReal escreve v em buf[0:4].
func EncodeReal(buf []byte, v float32) error {
	if len(buf) < 4 {
		return ErrBufferTooShort
	}
	binary.BigEndian.PutUint32(buf, math.Float32bits(v))
	return nil
}

// DecodeLReal lê um LREAL (IEEE-754 64 bits, big-endian) a partir de buf[0:8].
func DecodeLReal(buf []byte) (float64, error) {
	if len(buf) < 8 {
		return 0, ErrBufferTooShort
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
}

// EncodeLReal escreve v em buf[0:8].
func EncodeLReal(buf []byte, v float64) error {
	if len(buf) < 8 {
		return ErrBufferTooShort
	}
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return nil
}

// DecodeString lê uma string S7 (header[0]=max, header[1]=actual, payload em
// GBK) a partir de buf[0 : size+2]. Se o comprimento declarado cortar um
// caractere multibyte no meio, tenta novamente com um byte a menos, como faz
// o gateway original.
func DecodeString(buf []byte, size int) (string, error) {
	if len(buf) < size+2 {
		return "", ErrBufferTooShort
	}
	actualLen := int(buf[1])
	if actualLen > size {
		actualLen = size
	}
	payload := buf[2 : 2+actualLen]

	s, err := decodeGBK(payload)
	if err != nil && actualLen > 0 {
		// possível caractere multibyte truncado no fim: tenta com um byte a menos
		s, err = decodeGBK(payload[:actualLen-1])
	}
	if err != nil {
		return "", fmt.Errorf("decodificação GBK falhou: %w", err)
	}
	return s, nil
}

// EncodeString escreve o header S7 (max=size, actual=len(payload)) seguido
// do payload GBK em buf[0 : size+2], zero-preenchendo o restante de size.
// Se o valor codificado exceder size, é truncado; se o truncamento cortar um
// caractere no meio, recua um byte e tenta de novo. A segunda falha vira
// ErrEncoding.
func EncodeString(buf []byte, size int, value string) error {
	if len(buf) < size+2 {
		return ErrBufferTooShort
	}

	encoded, err := encodeGBK(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	if len(encoded) > size {
		truncated := encoded[:size]
		if _, derr := decodeGBK(truncated); derr != nil {
			if size == 0 {
				return ErrEncoding
			}
			truncated = encoded[:size-1]
			if _, derr := decodeGBK(truncated); derr != nil {
				return ErrEncoding
			}
		}
		encoded = truncated
	}

	buf[0] = byte(size)
	buf[1] = byte(len(encoded))
	copy(buf[2:2+len(encoded)], encoded)
	for i := 2 + len(encoded); i < size+2; i++ {
		buf[i] = 0
	}
	return nil
}

var errInvalidGBK = errors.New("sequência GBK inválida ou truncada")

func decodeGBK(b []byte) (string, error) {
	out, err := simplifiedchinese.GBK.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	// O decodificador do x/text não devolve erro para bytes inválidos ou
	// truncados: troca cada um por U+FFFD. Como U+FFFD não existe em GBK,
	// sua presença indica payload inválido.
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", errInvalidGBK
	}
	return string(out), nil
}

func encodeGBK(s string) ([]byte, error) {
	return simplifiedchinese.GBK.NewEncoder().Bytes([]byte(s))
}
