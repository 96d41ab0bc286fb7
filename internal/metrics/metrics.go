package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quotecast/notifier/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	RetriesScheduled    *prometheus.CounterVec
	SendLatency         *prometheus.HistogramVec
	BreakerTrips        *prometheus.CounterVec
	BreakerSkips        *prometheus.CounterVec
	QueueItems          *prometheus.CounterVec
	JobRuns             *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer.
// A custom registry (instead of prometheus.DefaultRegisterer) keeps tests
// isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quote_notifications_sent_total",
			Help: "Notifications accepted by the provider.",
		}, []string{"channel"}),

		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quote_notifications_failed_total",
			Help: "Failed send attempts by failure kind.",
		}, []string{"channel", "kind"}),

		RetriesScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quote_notification_retries_scheduled_total",
			Help: "Failed sends that were given a next_retry_at.",
		}, []string{"channel"}),

		SendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quote_notification_send_seconds",
			Help:    "Provider call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Transitions of a service breaker to open.",
		}, []string{"service"}),

		BreakerSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_skips_total",
			Help: "Sends or queue items skipped because the breaker was open.",
		}, []string{"service"}),

		QueueItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_queue_items_total",
			Help: "Queue items processed by outcome.",
		}, []string{"kind", "outcome"}),

		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_job_runs_total",
			Help: "Pipeline job invocations by result.",
		}, []string{"job", "result"}),
	}

	reg.MustRegister(
		m.NotificationsSent,
		m.NotificationsFailed,
		m.RetriesScheduled,
		m.SendLatency,
		m.BreakerTrips,
		m.BreakerSkips,
		m.QueueItems,
		m.JobRuns,
	)

	return m
}

// Hooks are the callbacks the pipeline reports through. A zero Hooks value
// is valid and records nothing.
type Hooks struct {
	OnSent           func(ch domain.Channel, latency time.Duration)
	OnFailed         func(ch domain.Channel, kind domain.FailureKind)
	OnRetryScheduled func(ch domain.Channel)
	OnBreakerTrip    func(service string)
	OnBreakerSkip    func(service string)
	OnQueueItem      func(kind domain.QueueKind, outcome string)
	OnJob            func(job string, err error)
}

// Hooks returns callbacks bound to these instruments.
// Centralises the prometheus calls so the service package stays import-free.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnSent: func(ch domain.Channel, latency time.Duration) {
			m.NotificationsSent.WithLabelValues(string(ch)).Inc()
			m.SendLatency.WithLabelValues(string(ch)).Observe(latency.Seconds())
		},
		OnFailed: func(ch domain.Channel, kind domain.FailureKind) {
			m.NotificationsFailed.WithLabelValues(string(ch), string(kind)).Inc()
		},
		OnRetryScheduled: func(ch domain.Channel) {
			m.RetriesScheduled.WithLabelValues(string(ch)).Inc()
		},
		OnBreakerTrip: func(service string) {
			m.BreakerTrips.WithLabelValues(service).Inc()
		},
		OnBreakerSkip: func(service string) {
			m.BreakerSkips.WithLabelValues(service).Inc()
		},
		OnQueueItem: func(kind domain.QueueKind, outcome string) {
			m.QueueItems.WithLabelValues(string(kind), outcome).Inc()
		},
		OnJob: func(job string, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.JobRuns.WithLabelValues(job, result).Inc()
		},
	}
}

// WithDefaults fills nil callbacks with no-ops.
func (h Hooks) WithDefaults() Hooks {
	if h.OnSent == nil {
		h.OnSent = func(domain.Channel, time.Duration) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(domain.Channel, domain.FailureKind) {}
	}
	if h.OnRetryScheduled == nil {
		h.OnRetryScheduled = func(domain.Channel) {}
	}
	if h.OnBreakerTrip == nil {
		h.OnBreakerTrip = func(string) {}
	}
	if h.OnBreakerSkip == nil {
		h.OnBreakerSkip = func(string) {}
	}
	if h.OnQueueItem == nil {
		h.OnQueueItem = func(domain.QueueKind, string) {}
	}
	if h.OnJob == nil {
		h.OnJob = func(string, error) {}
	}
	return h
}
