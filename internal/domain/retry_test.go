package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quotecast/notifier/internal/domain"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 15 * time.Minute},
		{2, 45 * time.Minute},
		{3, 135 * time.Minute},
		{4, 360 * time.Minute}, // 405 capped
		{5, 360 * time.Minute},
		{12, 360 * time.Minute},
		{-1, 5 * time.Minute},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, domain.RetryDelay(tc.retryCount), "retry_count=%d", tc.retryCount)
	}
}

func TestNextRetryAt_MatchesFormula(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for n := 0; n < domain.MaxRetries; n++ {
		minutes := 5
		for i := 0; i < n; i++ {
			minutes *= 3
		}
		if minutes > 360 {
			minutes = 360
		}
		got := domain.NextRetryAt(now, n).Sub(now)
		assert.Equal(t, time.Duration(minutes)*time.Minute, got, "retry_count=%d", n)
	}
}

func TestQueueBackoff(t *testing.T) {
	assert.Equal(t, 1*time.Minute, domain.QueueBackoff(0))
	assert.Equal(t, 2*time.Minute, domain.QueueBackoff(1))
	assert.Equal(t, 8*time.Minute, domain.QueueBackoff(3))
	assert.Equal(t, 1024*time.Minute, domain.QueueBackoff(10), "queue backoff is not capped at 360")
	assert.Positive(t, domain.QueueBackoff(500))
}

func TestDayStart(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	in := time.Date(2026, 5, 2, 1, 30, 0, 0, loc) // 2026-05-01 22:30 UTC
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), domain.DayStart(in))
}
