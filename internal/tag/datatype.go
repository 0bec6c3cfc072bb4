// internal/tag/datatype.go
//
// DataType is represented as a tagged variant — one arm per S7 type, each
// carrying its own codec and its own width rule — instead of dispatching on
// a type-name string at every call site. The Batch Engine and the sync-lane
// read/write path both operate uniformly over this variant.
package tag

import (
	"errors"
	"fmt"

	"s7gateway/internal/codec"
)

// Kind names one of the six PLC data types the gateway understands.
type Kind string

const (
	Bool   Kind = "bool"
	Int    Kind = "int"
	DInt   Kind = "dint"
	Real   Kind = "real"
	LReal  Kind = "lreal"
	String Kind = "string"
)

// ErrUnknownType reports a data_type value not in the Kind set.
var ErrUnknownType = errors.New("tipo de dado desconhecido")

// ErrTypeMismatch reports a value whose Go type does not match the Kind it
// is being encoded as.
var ErrTypeMismatch = errors.New("valor não corresponde ao tipo declarado")

type variant struct {
	effectiveSize func(size int) int
	decode        func(buf []byte, size, bitIndex int) (interface{}, error)
	encode        func(buf []byte, size, bitIndex int, value interface{}) error
}

var variants = map[Kind]variant{
	Bool: {
		effectiveSize: func(size int) int { return 1 },
		decode: func(buf []byte, size, bitIndex int) (interface{}, error) {
			return codec.DecodeBool(buf, bitIndex)
		},
		encode: func(buf []byte, size, bitIndex int, value interface{}) error {
			v, ok := value.(bool)
			if !ok {
				return fmt.Errorf("%w: esperado bool, recebido %T", ErrTypeMismatch, value)
			}
			return codec.EncodeBool(buf, bitIndex, v)
		},
	},
	Int: {
		effectiveSize: func(size int) int { return 2 },
		decode: func(buf []byte, size, bitIndex int) (interface{}, error) {
			return codec.DecodeInt(buf)
		},
		encode: func(buf []byte, size, bitIndex int, value interface{}) error {
			v, ok := asInt16(value)
			if !ok {
				return fmt.Errorf("%w: esperado int16, recebido %T", ErrTypeMismatch, value)
			}
			return codec.EncodeInt(buf, v)
		},
	},
	DInt: {
		effectiveSize: func(size int) int { return 4 },
		decode: func(buf []byte, size, bitIndex int) (interface{}, error) {
			return codec.DecodeDInt(buf)
		},
		encode: func(buf []byte, size, bitIndex int, value interface{}) error {
			v, ok := asInt32(value)
			if !ok {
				return fmt.Errorf("%w: esperado int32, recebido %T", ErrTypeMismatch, value)
			}
			return codec.EncodeDInt(buf, v)
		},
	},
	Real: {
		effectiveSize: func(size int) int { return 4 },
		decode: func(buf []byte, size, bitIndex int) (interface{}, error) {
			return codec.DecodeReal(buf)
		},
		encode: func(buf []byte, size, bitIndex int, value interface{}) error {
			v, ok := asFloat32(value)
			if !ok {
				return fmt.Errorf("%w: esperado float32, recebido %T", ErrTypeMismatch, value)
			}
			return codec.EncodeReal(buf, v)
		},
	},
	LReal: {
		effectiveSize: func(size int) int { return 8 },
		decode: func(buf []byte, size, bitIndex int) (interface{}, error) {
			return codec.DecodeLReal(buf)
		},
		encode: func(buf []byte, size, bitIndex int, value interface{}) error {
			v, ok := asFloat64(value)
			if !ok {
				return fmt.Errorf("%w: esperado float64, recebido %T", ErrTypeMismatch, value)
			}
			return codec.EncodeLReal(buf, v)
		},
	},
	String: {
		// The 2-byte S7 string header (max-length, actual-length) is always
		// present in addition to the declared payload size.
		effectiveSize: func(size int) int { return size + 2 },
		decode: func(buf []byte, size, bitIndex int) (interface{}, error) {
			return codec.DecodeString(buf, size)
		},
		encode: func(buf []byte, size, bitIndex int, value interface{}) error {
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: esperado string, recebido %T", ErrTypeMismatch, value)
			}
			return codec.EncodeString(buf, size, v)
		},
	},
}

// IsValid reports whether k names a known data type.
func IsValid(k Kind) bool {
	_, ok := variants[k]
	return ok
}

// EffectiveSize returns the number of bytes a tag of kind k with declared
// payload size actually occupies in the data block, including any header.
func EffectiveSize(k Kind, size int) (int, error) {
	v, ok := variants[k]
	if !ok {
		return 0, ErrUnknownType
	}
	return v.effectiveSize(size), nil
}

// Decode reads a value of kind k from buf (sized to EffectiveSize) using
// size and bitIndex as the type requires.
func Decode(k Kind, buf []byte, size, bitIndex int) (interface{}, error) {
	v, ok := variants[k]
	if !ok {
		return nil, ErrUnknownType
	}
	return v.decode(buf, size, bitIndex)
}

// Encode writes value into buf (sized to EffectiveSize) as kind k.
func Encode(k Kind, buf []byte, size, bitIndex int, value interface{}) error {
	v, ok := variants[k]
	if !ok {
		return ErrUnknownType
	}
	return v.encode(buf, size, bitIndex, value)
}

func asInt16(value interface{}) (int16, bool) {
	switch v := value.(type) {
	case int16:
		return v, true
	case int:
		return int16(v), true
	case float64:
		return int16(v), true
	}
	return 0, false
}

func asInt32(value interface{}) (int32, bool) {
	switch v := value.(type) {
	case int32:
		return v, true
	case int:
		return int32(v), true
	case float64:
		return int32(v), true
	}
	return 0, false
}

func asFloat32(value interface{}) (float32, bool) {
	switch v := value.(type) {
	case float32:
		return v, true
	case float64:
		return float32(v), true
	case int:
		return float32(v), true
	}
	return 0, false
}

func asFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
