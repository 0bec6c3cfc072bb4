// internal/tag/tag.go
package tag

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"s7gateway/internal/monitor"
)

// ErrConfig reports a declaration that violates one of the invariants below.
// Declarations are loaded once at startup; a ConfigError here is fatal.
var ErrConfig = errors.New("declaração de tag inválida")

// Declaration is the immutable description of one tag, loaded once at
// startup from the tabular store (see internal/repository).
type Declaration struct {
	TagPath       string
	PLC           string
	Group         string
	Name          string
	Description   string
	DBNumber      int
	StartOffset   int
	Size          int
	DataType      Kind
	BitIndex      int
	DefaultValue  interface{}
	ConfigMonitor bool
}

// Validate checks the invariants from the data model: bool tags occupy
// exactly one byte with a bit index in range, and the data type itself must
// be known. Size sufficiency for strings (size+2 bytes available in the
// block) is a batch/session-level concern, not checked here.
func (d Declaration) Validate() error {
	if d.TagPath == "" {
		return fmt.Errorf("%w: tag_path vazio", ErrConfig)
	}
	if !IsValid(d.DataType) {
		return fmt.Errorf("%w: tipo de dado desconhecido %q em %q", ErrConfig, d.DataType, d.TagPath)
	}
	if d.DataType == Bool {
		if d.Size != 1 {
			return fmt.Errorf("%w: tag bool %q deve ter size=1, recebeu %d", ErrConfig, d.TagPath, d.Size)
		}
		if d.BitIndex < 0 || d.BitIndex > 7 {
			return fmt.Errorf("%w: tag bool %q precisa de bit_index entre 0 e 7, recebeu %d", ErrConfig, d.TagPath, d.BitIndex)
		}
	}
	return nil
}

// EffectiveSize is the number of bytes this declaration occupies in the data
// block, including the string header when applicable.
func (d Declaration) EffectiveSize() int {
	size, _ := EffectiveSize(d.DataType, d.Size)
	return size
}

// Tag is one addressed, typed cell: the declaration plus its mutable current
// value, an optional pending write, and the edge monitor it drives.
type Tag struct {
	Decl Declaration

	mu           sync.Mutex
	currentValue interface{}
	pendingValue interface{}
	hasPending   bool
	lastUpdate   time.Time

	Monitor *monitor.Monitor
}

// New creates a Tag for decl, validating it first, and wires an edge monitor
// against pool with the declaration's config_monitor setting applied.
func New(decl Declaration, pool *monitor.Pool) (*Tag, error) {
	if err := decl.Validate(); err != nil {
		return nil, err
	}
	m := monitor.New(decl.TagPath, pool)
	m.EnableMonitor(decl.ConfigMonitor)
	return &Tag{
		Decl:         decl,
		currentValue: decl.DefaultValue,
		Monitor:      m,
	}, nil
}

// CurrentValue returns the last value observed from the PLC, or the last
// value successfully written, or the declaration's default before either
// has happened.
func (t *Tag) CurrentValue() interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentValue
}

// SetCurrentValue records a freshly read value and forwards the transition
// to the edge monitor. It is called from the batch read sweep, which serves
// both the scheduler's async-lane sweep and the API's sync-lane reads.
func (t *Tag) SetCurrentValue(v interface{}) {
	t.mu.Lock()
	old := t.currentValue
	t.currentValue = v
	t.lastUpdate = time.Now()
	t.mu.Unlock()

	t.Monitor.Observe(old, v)
}

// StagePendingWrite records a deferred write value. It does not touch
// current_value or the monitor; only a successful flush commits it.
func (t *Tag) StagePendingWrite(v interface{}) {
	t.mu.Lock()
	t.pendingValue = v
	t.hasPending = true
	t.mu.Unlock()
}

// PendingWrite returns the staged value, if any.
func (t *Tag) PendingWrite() (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingValue, t.hasPending
}

// CommitPendingWrite is called by the flush sweep after a successful block
// write: it promotes the pending value to current_value, clears the pending
// slot, and drives the monitor exactly as a read would.
func (t *Tag) CommitPendingWrite() {
	t.mu.Lock()
	if !t.hasPending {
		t.mu.Unlock()
		return
	}
	old := t.currentValue
	v := t.pendingValue
	t.currentValue = v
	t.hasPending = false
	t.pendingValue = nil
	t.lastUpdate = time.Now()
	t.mu.Unlock()

	t.Monitor.Observe(old, v)
}

// ClearPendingWrite discards a staged write without applying it.
func (t *Tag) ClearPendingWrite() {
	t.mu.Lock()
	t.hasPending = false
	t.pendingValue = nil
	t.mu.Unlock()
}

// LastUpdateTime is the time of the last current_value assignment (a read or
// a committed write), whether or not the value changed.
func (t *Tag) LastUpdateTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastUpdate
}

// Equal reports whether a and b are the same logical value, used by callers
// that need to decide whether a write is even necessary.
func Equal(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}
