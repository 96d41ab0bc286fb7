package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecast/notifier/internal/domain"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	b := domain.NewCircuitBreaker("email")
	b.FailureThreshold = 5

	for i := 0; i < 4; i++ {
		require.False(t, b.RecordFailure(t0), "failure %d must not trip", i+1)
	}
	assert.Equal(t, 4, b.FailureCount)
	assert.Equal(t, domain.BreakerClosed, b.State)

	assert.True(t, b.RecordFailure(t0))
	assert.Equal(t, domain.BreakerOpen, b.State)
	assert.Equal(t, 0, b.FailureCount, "failure_count resets when the breaker opens")
	require.NotNil(t, b.LastFailureAt)
	assert.Equal(t, t0, *b.LastFailureAt)
	assert.False(t, b.Allows())
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := domain.NewCircuitBreaker("email")
	b.FailureThreshold = 1
	require.True(t, b.RecordFailure(t0))

	assert.False(t, b.Refresh(t0.Add(domain.BreakerCooldown)), "exactly at cooldown stays open")
	assert.False(t, b.Allows())

	assert.True(t, b.Refresh(t0.Add(domain.BreakerCooldown+time.Second)))
	assert.Equal(t, domain.BreakerHalfOpen, b.State)
	assert.Equal(t, 0, b.FailureCount)
	assert.True(t, b.Allows())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := domain.NewCircuitBreaker("email")
	b.State = domain.BreakerHalfOpen
	b.FailureThreshold = 2

	assert.False(t, b.RecordFailure(t0))
	assert.Equal(t, 1, b.FailureCount)
	assert.Equal(t, domain.BreakerHalfOpen, b.State)

	assert.True(t, b.RecordFailure(t0))
	assert.Equal(t, domain.BreakerOpen, b.State)
}

func TestCircuitBreaker_SuccessCloses(t *testing.T) {
	b := domain.NewCircuitBreaker("email")
	b.State = domain.BreakerHalfOpen
	b.FailureCount = 1

	assert.True(t, b.RecordSuccess(t0))
	assert.Equal(t, domain.BreakerClosed, b.State)
	assert.Equal(t, 0, b.FailureCount)

	assert.False(t, b.RecordSuccess(t0), "clean closed breaker is unchanged")
}

func TestCircuitBreaker_OpenIgnoresLateResults(t *testing.T) {
	b := domain.NewCircuitBreaker("email")
	b.FailureThreshold = 1
	require.True(t, b.RecordFailure(t0))

	later := t0.Add(time.Minute)
	assert.False(t, b.RecordFailure(later))
	assert.Equal(t, t0, *b.LastFailureAt, "late failures do not extend the cooldown")
	assert.False(t, b.RecordSuccess(later))
	assert.Equal(t, domain.BreakerOpen, b.State)
}

func TestCircuitBreaker_ZeroThresholdUsesDefault(t *testing.T) {
	b := &domain.CircuitBreaker{ServiceName: "email", State: domain.BreakerClosed}
	for i := 0; i < domain.DefaultFailureThreshold-1; i++ {
		b.RecordFailure(t0)
	}
	assert.Equal(t, domain.BreakerClosed, b.State)
	assert.True(t, b.RecordFailure(t0))
}
