package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrQuoteNotLive          = errors.New("quote is not live")
	ErrEmailNotConfigured    = errors.New("email provider is not configured")
	ErrWhatsAppNotConfigured = errors.New("whatsapp provider is not configured")
	ErrInvalidToken          = errors.New("verification token is invalid")
	ErrTokenExpired          = errors.New("verification token has expired")
	ErrInvalidCode           = errors.New("verification code is invalid")
	ErrCodeExpired           = errors.New("verification code has expired")
	ErrTooManyAttempts       = errors.New("too many verification attempts")
	ErrPhoneMismatch         = errors.New("phone number does not match subscriber")
	ErrBreakerOpen           = errors.New("circuit breaker is open")
	ErrJobRunning            = errors.New("job is already running")
	ErrUnknownQueueKind      = errors.New("unknown queue item kind")
)
