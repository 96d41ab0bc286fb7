package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/quotecast/notifier/internal/domain"
)

var validate = validator.New()

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// decodeRequest reads a JSON body into v and validates it. On failure the
// response is already written and false is returned.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		respondError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	var sendErr *domain.SendError
	switch {
	case errors.As(err, &sendErr):
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":     sendErr.Failure.Message,
			"kind":      sendErr.Failure.Kind,
			"retryable": sendErr.Failure.Retryable,
		})
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrQuoteNotLive),
		errors.Is(err, domain.ErrJobRunning):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrUnknownQueueKind),
		errors.Is(err, domain.ErrPhoneMismatch):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrInvalidCode):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrCodeExpired):
		respondError(w, http.StatusGone, err.Error())
	case errors.Is(err, domain.ErrTooManyAttempts):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrBreakerOpen):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrEmailNotConfigured),
		errors.Is(err, domain.ErrWhatsAppNotConfigured):
		// Deployment problem, not a caller problem; say which one.
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
