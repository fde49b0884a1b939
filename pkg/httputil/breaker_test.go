package httputil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	b := NewCircuitBreaker(1, time.Minute)

	require.NoError(t, b.Allow())
	b.RecordFailure()

	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := NewCircuitBreaker(2, 10*time.Second)

	clock := time.Now()
	b.now = func() time.Time { return clock }

	b.RecordFailure()
	require.NoError(t, b.Allow(), "one failure below threshold keeps circuit closed")
	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	// Cooldown elapses: trial call allowed, success closes the circuit.
	clock = clock.Add(11 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	require.NoError(t, b.Allow())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Second)

	clock := time.Now()
	b.now = func() time.Time { return clock }

	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	clock = clock.Add(11 * time.Second)
	require.NoError(t, b.Allow())
	b.RecordFailure()

	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	b := NewCircuitBreaker(2, time.Minute)

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()

	assert.Equal(t, StateClosed, b.State(), "non-consecutive failures must not trip the breaker")
}
