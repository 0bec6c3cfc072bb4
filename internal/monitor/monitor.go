// internal/monitor/monitor.go
//
// Package monitor implements the per-tag edge-detection and handler-dispatch
// pipeline described for the gateway's Edge Monitor: every value assignment
// is checked for change, bool transitions additionally raise rising/falling
// events, and registered handlers run serially on a shared worker pool
// (see pool.go) instead of one thread per tag.
package monitor

import (
	"log"
	"math"
	"reflect"
	"sync"
	"time"
)

// EventKind identifies which handler bucket an Event belongs to.
type EventKind string

const (
	Change  EventKind = "change"
	Rising  EventKind = "rising"
	Falling EventKind = "falling"
	Both    EventKind = "both"
)

// Event describes one observed transition of a tag's value.
type Event struct {
	TagPath   string
	Kind      EventKind
	Old       interface{}
	New       interface{}
	Timestamp time.Time
}

// Handler reacts to an Event. Panics are recovered and logged; they never
// take down the worker pool.
type Handler func(Event)

// Monitor is the per-tag event pipeline. Its consumer is the shared Pool; the
// Monitor itself only owns the handler registry and the enabled flag.
type Monitor struct {
	tagPath string
	pool    *Pool

	mu       sync.Mutex
	enabled  bool
	handlers map[EventKind][]Handler
}

// New creates a Monitor for tagPath backed by pool. The monitor starts
// disabled; call EnableMonitor(true) to activate dispatch (mirrors
// config_monitor from the tag declaration).
func New(tagPath string, pool *Pool) *Monitor {
	return &Monitor{
		tagPath:  tagPath,
		pool:     pool,
		handlers: make(map[EventKind][]Handler),
	}
}

// EnableMonitor turns event dispatch on or off. This is the single API the
// rewrite exposes in place of the source's separate lazy-start-in-constructor
// and start_consumer/stop_consumer pair: calling it twice with the same value
// is a no-op, and there is no second code path that can race with it.
func (m *Monitor) EnableMonitor(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
}

// On registers a handler for the given event kind.
func (m *Monitor) On(kind EventKind, h Handler) {
	m.mu.Lock()
	m.handlers[kind] = append(m.handlers[kind], h)
	m.mu.Unlock()
}

// Observe feeds a value transition through the edge-detection rules. It is
// called by the owning Tag on every assignment of current_value; when old
// and new are equal (per valuesEqual) no event is raised.
func (m *Monitor) Observe(old, new interface{}) {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()
	if !enabled {
		return
	}
	if valuesEqual(old, new) {
		return
	}

	now := time.Now()
	m.enqueue(Event{TagPath: m.tagPath, Kind: Change, Old: old, New: new, Timestamp: now})

	oldBool, oldIsBool := old.(bool)
	newBool, newIsBool := new.(bool)
	if oldIsBool && newIsBool {
		switch {
		case !oldBool && newBool:
			m.enqueue(Event{TagPath: m.tagPath, Kind: Rising, Old: old, New: new, Timestamp: now})
			m.enqueue(Event{TagPath: m.tagPath, Kind: Both, Old: old, New: new, Timestamp: now})
		case oldBool && !newBool:
			m.enqueue(Event{TagPath: m.tagPath, Kind: Falling, Old: old, New: new, Timestamp: now})
			m.enqueue(Event{TagPath: m.tagPath, Kind: Both, Old: old, New: new, Timestamp: now})
		}
	}
}

// valuesEqual is the change predicate driving edge detection. For real/lreal
// values it compares with a small tolerance so PLC-side float rounding
// doesn't manufacture spurious CHANGE events; every other type compares
// exactly. Adapted from the teacher's pkg/plc/compare.go CompareValues.
func valuesEqual(old, new interface{}) bool {
	switch o := old.(type) {
	case float32:
		n, ok := new.(float32)
		return ok && math.Abs(float64(o-n)) < 1e-5
	case float64:
		n, ok := new.(float64)
		return ok && math.Abs(o-n) < 1e-5
	default:
		return reflect.DeepEqual(old, new)
	}
}

func (m *Monitor) enqueue(e Event) {
	m.pool.submit(m.tagPath, m, e)
}

// dispatch runs every handler registered for e.Kind, in registration order.
// A handler panic is logged and does not stop the remaining handlers or the
// worker.
func (m *Monitor) dispatch(e Event) {
	m.mu.Lock()
	handlers := append([]Handler(nil), m.handlers[e.Kind]...)
	m.mu.Unlock()

	for _, h := range handlers {
		runHandler(h, e)
	}
}

func runHandler(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("monitor: handler para tag %q (evento %s) entrou em pânico: %v", e.TagPath, e.Kind, r)
		}
	}()
	h(e)
}
