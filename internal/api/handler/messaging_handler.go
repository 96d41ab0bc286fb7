package handler

import (
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/quotecast/notifier/internal/api/middleware"
	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/service"
)

// MessagingHandler serves WhatsApp delivery and the verification flows.
type MessagingHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

func NewMessagingHandler(svc *service.Service, logger *zap.Logger) *MessagingHandler {
	return &MessagingHandler{svc: svc, logger: logger}
}

// SendWhatsApp handles POST /send-whatsapp-message
func (h *MessagingHandler) SendWhatsApp(w http.ResponseWriter, r *http.Request) {
	var req domain.SendWhatsAppRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	n, err := h.svc.SendWhatsApp(r.Context(), req)
	if err != nil {
		h.logger.Warn("send whatsapp failed",
			zap.String("subscriber_id", req.SubscriberID),
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":      "WhatsApp message sent",
		"notification": n,
	})
}

// VerifyWhatsApp handles POST /verify-whatsapp
func (h *MessagingHandler) VerifyWhatsApp(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyWhatsAppRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	v, err := h.svc.StartWhatsAppVerification(r.Context(), req)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":    "Verification code sent",
		"expires_at": v.ExpiresAt,
	})
}

// ConfirmWhatsApp handles POST /verify-whatsapp/confirm
func (h *MessagingHandler) ConfirmWhatsApp(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmWhatsAppRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.svc.ConfirmWhatsApp(r.Context(), req); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "WhatsApp number verified"})
}

// VerifySubscription handles POST /verify-subscription
func (h *MessagingHandler) VerifySubscription(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifySubscriptionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	id, err := h.svc.VerifySubscription(r.Context(), req.Token)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message":       "Subscription verified",
		"subscriber_id": id,
	})
}
