package domain

import "time"

type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberInactive     SubscriberStatus = "inactive"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
)

type EmailStatus string

const (
	EmailPending  EmailStatus = "pending"
	EmailVerified EmailStatus = "verified"
	EmailBounced  EmailStatus = "bounced"
)

// MaxBounceCount is the bounce count at which a subscriber stops receiving email.
const MaxBounceCount = 3

// Subscriber is read-only from the pipeline's point of view, apart from the
// verification flows that flip email_status and whatsapp_verified.
type Subscriber struct {
	ID                 string           `json:"id"`
	Email              string           `json:"email"`
	Name               string           `json:"name"`
	PhoneNumber        *string          `json:"phone_number,omitempty"`
	Status             SubscriberStatus `json:"status"`
	EmailStatus        EmailStatus      `json:"email_status"`
	NotifyNewQuotes    bool             `json:"notify_new_quotes"`
	NotifyWeeklyDigest bool             `json:"notify_weekly_digest"`
	NotifyWhatsApp     bool             `json:"notify_whatsapp"`
	WhatsAppVerified   bool             `json:"whatsapp_verified"`
	EmailBounceCount   int              `json:"email_bounce_count"`
	CreatedAt          time.Time        `json:"created_at"`
}

// WantsNewQuoteEmail mirrors the selector's SQL filter so in-memory callers
// and tests agree with the database.
func (s *Subscriber) WantsNewQuoteEmail() bool {
	return s.Status == SubscriberActive &&
		s.NotifyNewQuotes &&
		s.EmailStatus == EmailVerified &&
		s.EmailBounceCount < MaxBounceCount
}

// WantsWhatsApp reports whether the subscriber opted into verified WhatsApp sends.
func (s *Subscriber) WantsWhatsApp() bool {
	return s.Status == SubscriberActive && s.NotifyWhatsApp && s.WhatsAppVerified && s.PhoneNumber != nil
}
