package domain

import "encoding/json"

// Inbound request bodies for the function endpoints. Validation tags are
// enforced by the API layer before any side effect happens.

type SendQuoteNotificationRequest struct {
	QuoteID string `json:"quote_id" validate:"required"`
}

type SendWhatsAppRequest struct {
	PhoneNumber  string `json:"phone_number" validate:"required,e164"`
	SubscriberID string `json:"subscriber_id" validate:"required"`
	QuoteID      string `json:"quote_id,omitempty"`
}

type VerifyWhatsAppRequest struct {
	PhoneNumber  string `json:"phone_number" validate:"required,e164"`
	SubscriberID string `json:"subscriber_id" validate:"required"`
}

type ConfirmWhatsAppRequest struct {
	SubscriberID string `json:"subscriber_id" validate:"required"`
	Code         string `json:"code" validate:"required,len=6,numeric"`
}

type VerifySubscriptionRequest struct {
	Token string `json:"token" validate:"required,min=16"`
}

type EnqueueRequest struct {
	Kind        QueueKind       `json:"kind" validate:"required,oneof=quote_email whatsapp_message"`
	Priority    int             `json:"priority" validate:"gte=0,lte=100"`
	MaxAttempts int             `json:"max_attempts" validate:"omitempty,gte=1,lte=20"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
}
