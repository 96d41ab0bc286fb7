package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/metrics"
)

func TestHooks_RecordIntoInstruments(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := m.Hooks()

	h.OnSent(domain.ChannelEmail, 20*time.Millisecond)
	h.OnSent(domain.ChannelEmail, 30*time.Millisecond)
	h.OnFailed(domain.ChannelEmail, domain.FailureNetwork)
	h.OnBreakerTrip("email")
	h.OnJob("process-notification-queue", errors.New("x"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsFailed.WithLabelValues("email", "network")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTrips.WithLabelValues("email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("process-notification-queue", "error")))
}

func TestHooks_ZeroValueIsSafe(t *testing.T) {
	h := metrics.Hooks{}.WithDefaults()
	assert.NotPanics(t, func() {
		h.OnSent(domain.ChannelEmail, time.Second)
		h.OnFailed(domain.ChannelEmail, domain.FailureUnknown)
		h.OnRetryScheduled(domain.ChannelEmail)
		h.OnBreakerTrip("email")
		h.OnBreakerSkip("email")
		h.OnQueueItem(domain.QueueQuoteEmail, "completed")
		h.OnJob("x", nil)
	})
}
