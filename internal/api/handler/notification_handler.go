package handler

import (
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/quotecast/notifier/internal/api/middleware"
	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/service"
)

// NotificationHandler handles the quote dispatch and enqueue endpoints.
type NotificationHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.Service, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// SendQuoteNotification handles POST /send-quote-notification
//
// Called by the database webhook when a quote goes live. Replays are safe:
// subscribers with an existing record for the quote are skipped.
func (h *NotificationHandler) SendQuoteNotification(w http.ResponseWriter, r *http.Request) {
	var req domain.SendQuoteNotificationRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	res, err := h.svc.NotifyQuote(r.Context(), req.QuoteID)
	if err != nil {
		h.logger.Warn("send quote notification failed",
			zap.String("quote_id", req.QuoteID),
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	message := "Notifications dispatched"
	if res.Subscribers == 0 {
		message = "No subscribers to notify"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"sent":    res.Sent,
		"failed":  res.Failed,
		"result":  res,
	})
}

// Enqueue handles POST /enqueue-notification
func (h *NotificationHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	item, err := h.svc.Enqueue(r.Context(), req)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, item)
}
