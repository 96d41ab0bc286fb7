package domain

import "time"

const (
	WhatsAppCodeTTL         = 10 * time.Minute
	WhatsAppCodeMaxAttempts = 5
)

// EmailVerification is a single-use token mailed on signup.
type EmailVerification struct {
	Token        string     `json:"token"`
	SubscriberID string     `json:"subscriber_id"`
	ExpiresAt    time.Time  `json:"expires_at"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// WhatsAppVerification holds the pending code for a subscriber's phone number.
type WhatsAppVerification struct {
	SubscriberID string     `json:"subscriber_id"`
	PhoneNumber  string     `json:"phone_number"`
	Code         string     `json:"-"`
	Attempts     int        `json:"attempts"`
	ExpiresAt    time.Time  `json:"expires_at"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
