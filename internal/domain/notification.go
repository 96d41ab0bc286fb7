package domain

import "time"

// Channel is the delivery channel for a notification.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp:
		return true
	}
	return false
}

// ServiceName is the circuit breaker key guarding the channel's provider.
func (c Channel) ServiceName() string { return string(c) }

// Status tracks the outcome of the latest delivery attempt.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Notification is one delivery record per (subscriber, quote, channel).
// Once Status is sent the record is terminal and never touched again.
type Notification struct {
	ID                string     `json:"id"`
	SubscriberID      string     `json:"subscriber_id"`
	QuoteID           string     `json:"quote_id"`
	Channel           Channel    `json:"channel"`
	Recipient         string     `json:"recipient"`
	Status            Status     `json:"status"`
	RetryCount        int        `json:"retry_count"`
	NextRetryAt       *time.Time `json:"next_retry_at,omitempty"`
	ErrorKind         *string    `json:"error_kind,omitempty"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsSent reports whether the record reached its terminal success state.
func (n *Notification) IsSent() bool { return n.Status == StatusSent }

// Exhausted reports whether retries have run out.
func (n *Notification) Exhausted() bool { return n.RetryCount >= MaxRetries }

// DispatchResult summarises one fan-out of a quote to a subscriber list.
type DispatchResult struct {
	QuoteID          string `json:"quote_id"`
	Subscribers      int    `json:"subscribers"`
	Batches          int    `json:"batches"`
	Sent             int    `json:"sent"`
	Failed           int    `json:"failed"`
	Skipped          int    `json:"skipped"`
	Deferred         int    `json:"deferred"`
	RetriesScheduled int    `json:"retries_scheduled"`
	WhatsAppQueued   int    `json:"whatsapp_queued"`
	Error            string `json:"error,omitempty"`
}

// Add folds another result into r.
func (r *DispatchResult) Add(o DispatchResult) {
	r.Subscribers += o.Subscribers
	r.Batches += o.Batches
	r.Sent += o.Sent
	r.Failed += o.Failed
	r.Skipped += o.Skipped
	r.Deferred += o.Deferred
	r.RetriesScheduled += o.RetriesScheduled
	r.WhatsAppQueued += o.WhatsAppQueued
}

// ScheduledRun is the report of one scheduled-quote sweep.
type ScheduledRun struct {
	Promoted int              `json:"promoted"`
	Results  []DispatchResult `json:"results"`
	Totals   DispatchResult   `json:"totals"`
}

// RetryRun is the report of one retry sweep.
type RetryRun struct {
	Due         int `json:"due"`
	Sent        int `json:"sent"`
	Rescheduled int `json:"rescheduled"`
	Exhausted   int `json:"exhausted"`
	Permanent   int `json:"permanent"`
	Abandoned   int `json:"abandoned"`
	Skipped     int `json:"skipped"`
}
