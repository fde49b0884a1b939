package httputil

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is open. It is distinct from
// any underlying HTTP error: callers must treat it as fatal for the call,
// not retryable.
var ErrCircuitOpen = errors.New("circuit breaker open: upstream considered unhealthy")

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker tracks consecutive failures against a threshold. Once the
// threshold is reached the circuit opens and calls fail fast with
// ErrCircuitOpen until the reset cooldown elapses; the breaker then
// half-opens and allows a trial call. A success closes the circuit, a
// failure reopens it.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	reset     time.Duration
	failures  int
	state     BreakerState
	openedAt  time.Time
	now       func() time.Time // injectable for tests
}

// NewCircuitBreaker creates a breaker. A threshold of zero or less
// disables tripping entirely.
func NewCircuitBreaker(failureThreshold int, reset time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: failureThreshold,
		reset:     reset,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. While open and inside the
// cooldown it returns ErrCircuitOpen without touching the network; after
// the cooldown it transitions to half-open and lets the trial call through.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.reset {
		return ErrCircuitOpen
	}
	b.state = StateHalfOpen
	return nil
}

// RecordSuccess resets the failure counter and closes the circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = StateClosed
}

// RecordFailure counts one failure, opening the circuit when the
// consecutive-failure threshold is reached or when a half-open trial fails.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateHalfOpen || (b.threshold > 0 && b.failures >= b.threshold) {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
