package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while the circuit rejects requests
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Requests fail immediately
	StateHalfOpen                     // Probing whether the service recovered
)

// CircuitBreaker guards repeated calls against a failing dependency.
// After maxFailures consecutive failures the circuit opens and calls fail
// fast; after resetTimeout a limited number of probe calls is let through.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probeQuota   int // successful probes required to close again

	mu            sync.RWMutex
	state         CircuitState
	failureCount  int
	probeSuccess  int
	lastFailTime  time.Time
	totalRequests int64
	totalFailures int64
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		probeQuota:   3,
		state:        StateClosed,
	}
}

// Call executes fn under circuit breaker protection
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.RecordResult(err == nil)
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.probeSuccess = 0
			return true
		}
		return false

	case StateHalfOpen:
		return true
	}

	return false
}

// RecordResult records the outcome of one call
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	if success {
		switch cb.state {
		case StateClosed:
			cb.failureCount = 0
		case StateHalfOpen:
			cb.probeSuccess++
			if cb.probeSuccess >= cb.probeQuota {
				cb.state = StateClosed
				cb.failureCount = 0
			}
		}
		return
	}

	cb.totalFailures++
	cb.lastFailTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}
	case StateHalfOpen:
		// Any failure while probing reopens immediately
		cb.state = StateOpen
		cb.probeSuccess = 0
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Stats returns request/failure totals and the failure rate in percent
func (cb *CircuitBreaker) Stats() (requests, failures int64, failureRate float64) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	requests = cb.totalRequests
	failures = cb.totalFailures
	if requests > 0 {
		failureRate = float64(failures) / float64(requests) * 100.0
	}
	return
}

// Reset forces the circuit back to closed and clears all counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failureCount = 0
	cb.probeSuccess = 0
	cb.totalRequests = 0
	cb.totalFailures = 0
}
