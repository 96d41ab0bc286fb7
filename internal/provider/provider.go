package provider

import (
	"context"
	"fmt"
)

// EmailMessage is a rendered, ready-to-send transactional email.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
	Text    string
	// Tags are forwarded to providers that support message tagging.
	Tags map[string]string
}

// SendResponse carries the provider's acknowledgement.
type SendResponse struct {
	MessageID string `json:"id"`
}

// EmailSender abstracts the transactional email provider.
// Mocking this interface in tests gives full control over provider behaviour
// without making real HTTP calls.
type EmailSender interface {
	SendEmail(ctx context.Context, msg *EmailMessage) (*SendResponse, error)
}

// WhatsAppTemplate is a template message for the WhatsApp Cloud API.
type WhatsAppTemplate struct {
	To         string
	Name       string
	Language   string
	Parameters []string
}

// WhatsAppSender abstracts template-based WhatsApp delivery.
type WhatsAppSender interface {
	SendTemplate(ctx context.Context, msg *WhatsAppTemplate) (*SendResponse, error)
}

// StatusError is returned when a provider answers with a non-success status.
// It exposes the status code so failures can be classified without parsing
// the message.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }
