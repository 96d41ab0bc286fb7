package domain

import (
	"encoding/json"
	"time"
)

// QueueKind identifies the work a queue item carries.
type QueueKind string

const (
	QueueQuoteEmail      QueueKind = "quote_email"
	QueueWhatsAppMessage QueueKind = "whatsapp_message"
)

func (k QueueKind) IsValid() bool {
	switch k {
	case QueueQuoteEmail, QueueWhatsAppMessage:
		return true
	}
	return false
}

// ServiceName is the breaker guarding this kind of work.
func (k QueueKind) ServiceName() string {
	if k == QueueWhatsAppMessage {
		return ChannelWhatsApp.ServiceName()
	}
	return ChannelEmail.ServiceName()
}

type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

const (
	DefaultQueueMaxAttempts = 3
	QueuePollLimit          = 10
	// QueueProcessingLease is how long an item may sit in processing before
	// a later pass reclaims it; a run killed mid-item never marks it done.
	QueueProcessingLease = 15 * time.Minute
)

// QueueItem is a row of the generic, database-backed notification queue.
// Higher Priority is processed first; ties go to the oldest item.
type QueueItem struct {
	ID            string          `json:"id"`
	Kind          QueueKind       `json:"kind"`
	ServiceName   string          `json:"service_name"`
	Priority      int             `json:"priority"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	Status        QueueStatus     `json:"status"`
	LastError     *string         `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// QuoteEmailPayload is the payload of a quote_email item.
type QuoteEmailPayload struct {
	QuoteID      string `json:"quote_id" validate:"required"`
	SubscriberID string `json:"subscriber_id" validate:"required"`
}

// WhatsAppPayload is the payload of a whatsapp_message item.
type WhatsAppPayload struct {
	SubscriberID string `json:"subscriber_id" validate:"required"`
	PhoneNumber  string `json:"phone_number" validate:"required,e164"`
	QuoteID      string `json:"quote_id,omitempty"`
}

// QueueOutcome counts what a single ProcessQueue pass did.
type QueueOutcome struct {
	Fetched   int `json:"fetched"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Retrying  int `json:"retrying"`
	Skipped   int `json:"skipped"`
}
