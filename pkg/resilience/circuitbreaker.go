// pkg/resilience/circuitbreaker.go
//
// Package resilience holds the failure-tripwire and throttling primitives
// used by the Scheduler's per-job health tracking (CircuitBreaker: a job
// that keeps failing stops being run on every tick and instead waits out a
// cooldown) and the API's per-tag write throttling (RateLimiter).
package resilience

import (
	"sync"
	"time"
)

// CircuitBreaker avoids hammering a PLC (or a scheduled job) that is
// currently failing.
type CircuitBreaker struct {
	mutex     sync.RWMutex
	failCount int
	lastFail  time.Time
	threshold int
	cooldown  time.Duration
	isOpen    bool
}

// NewCircuitBreaker creates a breaker that opens after threshold
// consecutive failures and stays open for cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// IsOpen reports whether calls should currently be suppressed. Once the
// cooldown has elapsed, it closes the circuit and clears the failure count
// so the next call gets a fresh attempt.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	if cb.isOpen {
		if time.Since(cb.lastFail) > cb.cooldown {
			cb.mutex.RUnlock()
			cb.mutex.Lock()
			cb.isOpen = false
			cb.failCount = 0
			cb.mutex.Unlock()
			cb.mutex.RLock()
			return false
		}
		return true
	}
	return false
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.failCount = 0
	cb.isOpen = false
}

// RecordFailure counts one failure and opens the circuit once threshold is
// reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.failCount++
	cb.lastFail = time.Now()

	if cb.failCount >= cb.threshold {
		cb.isOpen = true
	}
}
