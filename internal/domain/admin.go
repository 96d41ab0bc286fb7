package domain

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AdminNotification is an alert surfaced in the back-office.
type AdminNotification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Daily metric names upserted by the pipeline.
const (
	MetricQueueProcessed    = "queue_processed"
	MetricNotificationsSent = "notifications_sent"
)
