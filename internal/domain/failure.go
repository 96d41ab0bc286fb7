package domain

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// FailureKind buckets provider errors by how the pipeline should react.
type FailureKind string

const (
	FailureRateLimit            FailureKind = "rate_limit"
	FailureInvalidEmail         FailureKind = "invalid_email"
	FailureVerificationRequired FailureKind = "verification_required"
	FailureNetwork              FailureKind = "network"
	FailureServiceUnavailable   FailureKind = "service_unavailable"
	FailureUnknown              FailureKind = "unknown"
)

// Failure is the classification of a single send error.
type Failure struct {
	Kind      FailureKind `json:"kind"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
}

// SendError is returned by synchronous send endpoints when the provider
// rejected the message. It carries the classification for the response.
type SendError struct {
	Failure Failure
	Err     error
}

func (e *SendError) Error() string { return "send failed: " + e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }

// httpStatusError is satisfied by provider errors that carry the upstream
// HTTP status code.
type httpStatusError interface {
	HTTPStatus() int
}

// Classify maps a send error onto a Failure. It is a pure function: the same
// error always produces the same classification. Unrecognised errors are
// treated as retryable.
func Classify(err error) Failure {
	if err == nil {
		return Failure{Kind: FailureUnknown, Message: "unknown error", Retryable: true}
	}

	msg := strings.ToLower(err.Error())

	// Message content wins over status codes: providers reuse 4xx codes for
	// several of these conditions.
	switch {
	case containsAny(msg, "rate limit", "rate_limit", "too many requests"):
		return rateLimited()
	case containsAny(msg, "invalid email", "invalid_email", "invalid `to`", "invalid recipient", "invalid_to_address"):
		return invalidEmail()
	case containsAny(msg, "verify", "verification", "not verified"):
		return verificationRequired()
	case containsAny(msg, "service unavailable", "service_unavailable", "bad gateway", "gateway timeout", "circuit breaker"):
		return unavailable()
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		switch code := statusErr.HTTPStatus(); {
		case code == http.StatusTooManyRequests:
			return rateLimited()
		case code == http.StatusUnprocessableEntity:
			return invalidEmail()
		case code == http.StatusForbidden:
			return verificationRequired()
		case code >= 500:
			return unavailable()
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) ||
		containsAny(msg, "network", "timeout", "connection", "eof", "no such host") {
		return Failure{Kind: FailureNetwork, Message: "Network error while contacting the provider", Retryable: true}
	}

	return Failure{Kind: FailureUnknown, Message: err.Error(), Retryable: true}
}

func rateLimited() Failure {
	return Failure{Kind: FailureRateLimit, Message: "Rate limit exceeded, will retry later", Retryable: true}
}

func invalidEmail() Failure {
	return Failure{Kind: FailureInvalidEmail, Message: "Invalid email address", Retryable: false}
}

func verificationRequired() Failure {
	return Failure{Kind: FailureVerificationRequired, Message: "Sender domain or address requires verification", Retryable: true}
}

func unavailable() Failure {
	return Failure{Kind: FailureServiceUnavailable, Message: "Email service temporarily unavailable", Retryable: true}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
