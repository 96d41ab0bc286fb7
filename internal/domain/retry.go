package domain

import (
	"math"
	"time"
)

// Retry schedule for failed notification sends:
//
//	delay(n) = min(RetryBaseDelay * RetryFactor^n, RetryMaxDelay)
//
// n is the retry_count stored on the record before the delay is applied.
const (
	MaxRetries     = 5
	RetryBaseDelay = 5 * time.Minute
	RetryFactor    = 3
	RetryMaxDelay  = 360 * time.Minute
)

// RetryDelay returns the backoff for a record that has already been retried
// retryCount times.
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	minutes := float64(RetryBaseDelay/time.Minute) * math.Pow(RetryFactor, float64(retryCount))
	if minutes >= float64(RetryMaxDelay/time.Minute) {
		return RetryMaxDelay
	}
	return time.Duration(minutes) * time.Minute
}

// NextRetryAt is now plus RetryDelay(retryCount).
func NextRetryAt(now time.Time, retryCount int) time.Time {
	return now.Add(RetryDelay(retryCount))
}

// QueueBackoff is the notification queue's delay after attempts failures:
// 2^attempts minutes with no cap. The exponent is clamped only so the result
// stays representable as a time.Duration.
func QueueBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 27 {
		attempts = 27
	}
	return time.Duration(1<<uint(attempts)) * time.Minute
}
