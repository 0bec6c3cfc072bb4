// internal/session/session.go
//
// Package session owns the single TCP connection to one PLC and exposes the
// byte-range read/write primitives the rest of the gateway is built on
// (spec §4.1). The protocol library itself (github.com/robinson/gos7) is
// the "S7 wire codec" the spec treats as an external collaborator; Session
// adds the connection lifecycle, the bounded-timeout mutex, the
// process-wide connect gate and the round-trip timing around it.
package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robinson/gos7"
)

// Error kinds from spec §7 that originate in this package.
var (
	ErrNotConnected = errors.New("sessão não conectada")
	ErrLockTimeout  = errors.New("tempo esgotado ao adquirir trava da sessão")
	ErrProtocol     = errors.New("falha de protocolo S7")
)

// slowRoundTrip is the threshold past which an operation logs a warning,
// carried over from original_source/gateway/plc/client.py's
// _log_execution_time (spec §4.1).
const slowRoundTrip = 200 * time.Millisecond

// lockTimeout bounds how long a caller waits to acquire the instance mutex
// before failing with ErrLockTimeout (spec §4.1, §5).
const lockTimeout = 3 * time.Second

// connectMutexes gates connect() per PLC address so two Sessions to the
// same PLC never race on TCP setup (spec §4.1's process-wide mutex). Keyed
// by "address/rack/slot" so sync and async Sessions to the same PLC share a gate
// while distinct PLCs don't serialise against each other.
var (
	connectMutexesMu sync.Mutex
	connectMutexes   = map[string]*sync.Mutex{}
)

func connectGate(key string) *sync.Mutex {
	connectMutexesMu.Lock()
	defer connectMutexesMu.Unlock()
	m, ok := connectMutexes[key]
	if !ok {
		m = &sync.Mutex{}
		connectMutexes[key] = m
	}
	return m
}

// Config addresses one PLC connection.
type Config struct {
	Name    string // identifies this Session in logs (e.g. "plc1.sync")
	Address string // host or host:port; port defaults to 102
	Rack    int
	Slot    int
	Timeout time.Duration
}

// dbClient is the narrow slice of gos7.Client this package actually calls.
// Declaring it locally (rather than storing gos7.Client directly) keeps the
// Session testable with a fake, without pretending to own the wire codec.
type dbClient interface {
	AGReadDB(dbNumber, start, size int, buffer []byte) error
	AGWriteDB(dbNumber, start, size int, buffer []byte) error
}

// Session is one S7 connection. All I/O is serialised through mu with a
// bounded-timeout acquisition; connect() additionally takes the process-wide
// gate for this PLC's address.
type Session struct {
	cfg Config

	// mu guards handler/client/connected and serialises I/O. Acquired via
	// tryLock with lockTimeout rather than a plain Lock, so a stuck peer
	// cannot deadlock callers indefinitely.
	mu        chan struct{}
	handler   *gos7.TCPClientHandler
	client    dbClient
	connected bool
}

// New creates a Session for cfg. It does not connect; call Connect.
func New(cfg Config) *Session {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	s := &Session{cfg: cfg, mu: make(chan struct{}, 1)}
	s.mu <- struct{}{}
	return s
}

func (s *Session) lock(timeout time.Duration) error {
	select {
	case <-s.mu:
		return nil
	case <-time.After(timeout):
		return ErrLockTimeout
	}
}

func (s *Session) unlock() {
	s.mu <- struct{}{}
}

// gateKey identifies the process-wide connect mutex for this PLC address.
func (s *Session) gateKey() string {
	return fmt.Sprintf("%s/%d/%d", s.cfg.Address, s.cfg.Rack, s.cfg.Slot)
}

// Connect establishes the TCP session, making up to 3 attempts with doubling
// backoff (kept from the teacher's connect(), layered under whatever retry
// the supervisor performs on top — see SPEC_FULL.md SUPPLEMENTED FEATURES).
func (s *Session) Connect() error {
	gate := connectGate(s.gateKey())
	gate.Lock()
	defer gate.Unlock()

	if err := s.lock(lockTimeout); err != nil {
		return err
	}
	defer s.unlock()

	if s.handler != nil {
		s.handler.Close()
		s.handler = nil
		s.client = nil
	}

	handler := gos7.NewTCPClientHandler(s.cfg.Address, s.cfg.Rack, s.cfg.Slot)
	handler.Timeout = s.cfg.Timeout

	var err error
	backoff := 100 * time.Millisecond
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		err = handler.Connect()
		if err == nil {
			break
		}
		log.Printf("session %s: falha na tentativa %d de conectar a %s: %v. tentando novamente em %v",
			s.cfg.Name, i+1, s.cfg.Address, err, backoff)
		time.Sleep(backoff)
		backoff *= 2
	}
	if err != nil {
		s.connected = false
		return fmt.Errorf("%w: %s após %d tentativas: %v", ErrNotConnected, s.cfg.Address, maxRetries, err)
	}

	s.handler = handler
	s.client = gos7.NewClient(handler)
	s.connected = true
	log.Printf("session %s: conectado a %s (rack=%d slot=%d)", s.cfg.Name, s.cfg.Address, s.cfg.Rack, s.cfg.Slot)
	return nil
}

// Disconnect closes the underlying socket. Safe to call on an already
// disconnected Session.
func (s *Session) Disconnect() error {
	if err := s.lock(lockTimeout); err != nil {
		return err
	}
	defer s.unlock()

	if s.handler != nil {
		s.handler.Close()
		s.handler = nil
		s.client = nil
	}
	s.connected = false
	return nil
}

// Reconnect forces a fresh Connect, tearing down any existing handler first.
func (s *Session) Reconnect() error {
	log.Printf("session %s: forçando reconexão a %s", s.cfg.Name, s.cfg.Address)
	return s.Connect()
}

// IsConnected returns the best-effort cached connection state.
func (s *Session) IsConnected() bool {
	if err := s.lock(lockTimeout); err != nil {
		return false
	}
	defer s.unlock()
	return s.connected
}

// WaitUntilReady blocks until the Session reports connected or timeout
// elapses, returning false rather than erroring on timeout (spec §5).
func (s *Session) WaitUntilReady(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.IsConnected() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return s.IsConnected()
}

// ReadRange reads length bytes starting at offset from data block db.
func (s *Session) ReadRange(db, offset, length int) ([]byte, error) {
	if err := s.lock(lockTimeout); err != nil {
		return nil, err
	}
	defer s.unlock()

	if !s.connected || s.client == nil {
		return nil, ErrNotConnected
	}

	buf := make([]byte, length)
	start := time.Now()
	err := s.client.AGReadDB(db, offset, length, buf)
	s.logSlow("read_range", start)
	if err != nil {
		return nil, fmt.Errorf("%w: read_range(db=%d, offset=%d, length=%d): %v", ErrProtocol, db, offset, length, err)
	}
	return buf, nil
}

// WriteRange writes buf at offset in data block db.
func (s *Session) WriteRange(db, offset int, buf []byte) error {
	if err := s.lock(lockTimeout); err != nil {
		return err
	}
	defer s.unlock()

	if !s.connected || s.client == nil {
		return ErrNotConnected
	}

	start := time.Now()
	err := s.client.AGWriteDB(db, offset, len(buf), buf)
	s.logSlow("write_range", start)
	if err != nil {
		return fmt.Errorf("%w: write_range(db=%d, offset=%d, length=%d): %v", ErrProtocol, db, offset, len(buf), err)
	}
	return nil
}

func (s *Session) logSlow(op string, start time.Time) {
	if elapsed := time.Since(start); elapsed > slowRoundTrip {
		log.Printf("session %s: %s levou %v (acima do limite de %v)", s.cfg.Name, op, elapsed, slowRoundTrip)
	}
}

// ToggleBit implements the "negate bit" helper used by the heartbeat: read
// the byte at (db, offset), flip bitIndex, write it back.
//
// Bug fix preserved from source: the read-success check must guard
// "if not ok", not "if ok" — original_source/gateway/plc/client.go's
// writeDB_NegateBit had this inverted; the corrected semantics below only
// raise on a failed read, not on a successful one.
func (s *Session) ToggleBit(db, offset, bitIndex int) error {
	buf, err := s.ReadRange(db, offset, 1)
	if err != nil {
		return fmt.Errorf("toggle_bit: leitura falhou: %w", err)
	}
	buf[0] ^= 1 << uint(bitIndex)
	return s.WriteRange(db, offset, buf)
}
