package domain

import "time"

// BreakerState is the circuit breaker position for one downstream service.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

const (
	DefaultFailureThreshold = 5
	BreakerCooldown         = 5 * time.Minute
)

// CircuitBreaker is the persisted breaker row for a service.
//
// Transitions:
//
//	closed    -> open      failure_count+1 >= failure_threshold
//	open      -> half-open now > last_failure_at + BreakerCooldown
//	half-open -> closed    successful send
//	half-open -> open      failure_count+1 >= failure_threshold
type CircuitBreaker struct {
	ServiceName      string       `json:"service_name"`
	State            BreakerState `json:"state"`
	FailureCount     int          `json:"failure_count"`
	FailureThreshold int          `json:"failure_threshold"`
	LastFailureAt    *time.Time   `json:"last_failure_at,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// NewCircuitBreaker returns a closed breaker with the default threshold.
func NewCircuitBreaker(service string) *CircuitBreaker {
	return &CircuitBreaker{
		ServiceName:      service,
		State:            BreakerClosed,
		FailureThreshold: DefaultFailureThreshold,
	}
}

func (b *CircuitBreaker) threshold() int {
	if b.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return b.FailureThreshold
}

// Refresh applies the time-based open -> half-open transition and reports
// whether the state changed.
func (b *CircuitBreaker) Refresh(now time.Time) bool {
	if b.State != BreakerOpen || b.LastFailureAt == nil {
		return false
	}
	if !now.After(b.LastFailureAt.Add(BreakerCooldown)) {
		return false
	}
	b.State = BreakerHalfOpen
	b.FailureCount = 0
	b.UpdatedAt = now
	return true
}

// Allows reports whether dispatch is permitted. Call Refresh first.
func (b *CircuitBreaker) Allows() bool { return b.State != BreakerOpen }

// RecordFailure counts a failed call and reports whether it tripped the breaker.
// Failures reported while already open (in-flight sends) do not extend the
// cooldown.
func (b *CircuitBreaker) RecordFailure(now time.Time) (tripped bool) {
	if b.State == BreakerOpen {
		return false
	}
	t := now
	b.LastFailureAt = &t
	b.UpdatedAt = now
	if b.FailureCount+1 >= b.threshold() {
		b.State = BreakerOpen
		b.FailureCount = 0
		return true
	}
	b.FailureCount++
	return false
}

// RecordSuccess closes a half-open breaker and clears the consecutive
// failure count. It reports whether anything changed.
func (b *CircuitBreaker) RecordSuccess(now time.Time) bool {
	if b.State == BreakerOpen {
		return false
	}
	if b.State == BreakerClosed && b.FailureCount == 0 {
		return false
	}
	b.State = BreakerClosed
	b.FailureCount = 0
	b.UpdatedAt = now
	return true
}
