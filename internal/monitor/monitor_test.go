package monitor

import (
	"sync"
	"testing"
	"time"
)

func TestEdgeExactness(t *testing.T) {
	pool := NewPool(4, 16)
	pool.Start()
	defer pool.Stop()

	m := New("Motor1_Status", pool)
	m.EnableMonitor(true)

	var mu sync.Mutex
	var kinds []EventKind
	record := func(e Event) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
	}
	for _, k := range []EventKind{Change, Rising, Falling, Both} {
		m.On(k, record)
	}

	// false, true, true, false -- the duplicate true must not re-fire.
	sequence := []bool{false, true, true, false}
	prev := interface{}(false)
	for _, v := range sequence[1:] {
		if prev != v {
			m.Observe(prev, v)
		}
		prev = v
	}

	waitForCount(t, &mu, &kinds, 6)

	want := []EventKind{Change, Rising, Both, Change, Falling, Both}
	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != len(want) {
		t.Fatalf("got %d events %v, want %d %v", len(kinds), kinds, len(want), want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s (%v)", i, kinds[i], want[i], kinds)
		}
	}
}

func TestObserveIgnoresEqualValues(t *testing.T) {
	pool := NewPool(2, 8)
	pool.Start()
	defer pool.Stop()

	m := New("Tag1", pool)
	m.EnableMonitor(true)

	count := 0
	var mu sync.Mutex
	m.On(Change, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	m.Observe(true, true)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no CHANGE event for equal values, got %d", count)
	}
}

func TestObserveNoopWhenDisabled(t *testing.T) {
	pool := NewPool(2, 8)
	pool.Start()
	defer pool.Stop()

	m := New("Tag2", pool)
	// never enabled

	count := 0
	var mu sync.Mutex
	m.On(Change, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	m.Observe(false, true)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no dispatch while monitor disabled, got %d", count)
	}
}

func TestObserveIgnoresFloatRoundingNoise(t *testing.T) {
	pool := NewPool(2, 8)
	pool.Start()
	defer pool.Stop()

	m := New("Temperature", pool)
	m.EnableMonitor(true)

	count := 0
	var mu sync.Mutex
	m.On(Change, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	m.Observe(float32(20.0001), float32(20.000105))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no CHANGE event within float tolerance, got %d", count)
	}
}

func TestObserveFiresOnRealFloatChange(t *testing.T) {
	pool := NewPool(2, 8)
	pool.Start()
	defer pool.Stop()

	m := New("Temperature", pool)
	m.EnableMonitor(true)

	count := 0
	var mu sync.Mutex
	m.On(Change, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	m.Observe(float64(20.0), float64(21.5))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one CHANGE event for a real float change, got %d", count)
	}
}

func waitForCount(t *testing.T, mu *sync.Mutex, kinds *[]EventKind, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(*kinds)
		mu.Unlock()
		if n >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
}
