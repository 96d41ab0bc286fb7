package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/provider"
)

// errWhatsAppUnverified wraps ErrInvalidRequest so the caller gets a 422.
var errWhatsAppUnverified = fmt.Errorf("%w: subscriber has no verified whatsapp number", domain.ErrInvalidRequest)

// SendWhatsApp sends a quote to one subscriber over WhatsApp. Without a
// quote id the most recent live quote is sent. Only the subscriber's own
// verified number is accepted as the recipient. The send is recorded as a
// channel=whatsapp notification, and a subscriber that already received the
// quote gets the existing record back without a second send.
func (s *Service) SendWhatsApp(ctx context.Context, req domain.SendWhatsAppRequest) (*domain.Notification, error) {
	if s.whatsapp == nil {
		return nil, domain.ErrWhatsAppNotConfigured
	}
	sub, err := s.store.Subscribers.GetByID(ctx, req.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("load subscriber: %w", err)
	}
	if !sub.WhatsAppVerified || sub.PhoneNumber == nil {
		return nil, errWhatsAppUnverified
	}
	if *sub.PhoneNumber != req.PhoneNumber {
		return nil, domain.ErrPhoneMismatch
	}

	var q *domain.Quote
	if req.QuoteID != "" {
		q, err = s.store.Quotes.GetByID(ctx, req.QuoteID)
	} else {
		q, err = s.store.Quotes.LatestLive(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load quote: %w", err)
	}
	return s.deliverWhatsApp(ctx, q, sub.ID, *sub.PhoneNumber, true)
}

// deliverWhatsApp sends q and records the result. scheduleRetry controls
// whether a retryable failure is handed to the retry sweep; queue-driven
// sends pass false because the queue owns their retries.
func (s *Service) deliverWhatsApp(ctx context.Context, q *domain.Quote, subscriberID, phone string, scheduleRetry bool) (*domain.Notification, error) {
	existing, err := s.store.Notifications.Find(ctx, subscriberID, q.ID, domain.ChannelWhatsApp)
	switch {
	case err == nil && existing.IsSent():
		return existing, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	allowed, err := s.breakers.Allow(ctx, domain.ChannelWhatsApp.ServiceName(), s.now())
	if err != nil {
		return nil, fmt.Errorf("check whatsapp breaker: %w", err)
	}
	if !allowed {
		return nil, domain.ErrBreakerOpen
	}

	now := s.now()
	n := &domain.Notification{
		ID:           uuid.New().String(),
		SubscriberID: subscriberID,
		QuoteID:      q.ID,
		Channel:      domain.ChannelWhatsApp,
		Recipient:    phone,
		CreatedAt:    now,
	}
	if existing != nil {
		n.ID = existing.ID
		n.CreatedAt = existing.CreatedAt
		n.RetryCount = existing.RetryCount
	}

	messageID, sendErr := s.sendWhatsAppQuote(ctx, q, phone)
	if sendErr == nil {
		s.markSent(n, messageID)
		if _, err := s.store.Notifications.Save(ctx, n); err != nil {
			s.logger.Error("record whatsapp send", zap.String("subscriber_id", subscriberID), zap.Error(err))
		}
		return n, nil
	}

	f := domain.Classify(sendErr)
	s.markFailed(n, sendErr, f, n.RetryCount)
	if !scheduleRetry {
		n.NextRetryAt = queueOwnedRetry(existing, f)
	}
	if _, err := s.store.Notifications.Save(ctx, n); err != nil {
		s.logger.Error("record whatsapp failure", zap.String("subscriber_id", subscriberID), zap.Error(err))
	}
	if n.NextRetryAt != nil {
		s.hooks.OnRetryScheduled(domain.ChannelWhatsApp)
	}
	return n, &domain.SendError{Failure: f, Err: sendErr}
}

func (s *Service) sendWhatsAppQuote(ctx context.Context, q *domain.Quote, phone string) (string, error) {
	return s.sendWhatsAppTemplate(ctx, &provider.WhatsAppTemplate{
		To:         phone,
		Name:       s.opts.QuoteTemplate,
		Language:   s.opts.TemplateLanguage,
		Parameters: []string{q.Text, q.Author},
	})
}

// sendWhatsAppTemplate rate-limits and sends one template message, feeding
// the result into metrics and the whatsapp breaker.
func (s *Service) sendWhatsAppTemplate(ctx context.Context, msg *provider.WhatsAppTemplate) (string, error) {
	if err := s.limiter.Wait(ctx, domain.ChannelWhatsApp); err != nil {
		return "", err
	}
	start := time.Now()
	resp, err := s.whatsapp.SendTemplate(ctx, msg)
	f := domain.Classify(err)
	s.recordBreaker(ctx, domain.ChannelWhatsApp.ServiceName(), err, f)
	if err != nil {
		s.hooks.OnFailed(domain.ChannelWhatsApp, f.Kind)
		return "", err
	}
	s.hooks.OnSent(domain.ChannelWhatsApp, time.Since(start))
	return resp.MessageID, nil
}

// StartWhatsAppVerification issues a six-digit code for the subscriber's
// phone number and sends it with the verification template. A new request
// replaces any pending code.
func (s *Service) StartWhatsAppVerification(ctx context.Context, req domain.VerifyWhatsAppRequest) (*domain.WhatsAppVerification, error) {
	if s.whatsapp == nil {
		return nil, domain.ErrWhatsAppNotConfigured
	}
	if _, err := s.store.Subscribers.GetByID(ctx, req.SubscriberID); err != nil {
		return nil, fmt.Errorf("load subscriber: %w", err)
	}

	allowed, err := s.breakers.Allow(ctx, domain.ChannelWhatsApp.ServiceName(), s.now())
	if err != nil {
		return nil, fmt.Errorf("check whatsapp breaker: %w", err)
	}
	if !allowed {
		return nil, domain.ErrBreakerOpen
	}

	code, err := verificationCode()
	if err != nil {
		return nil, err
	}
	now := s.now()
	v := &domain.WhatsAppVerification{
		SubscriberID: req.SubscriberID,
		PhoneNumber:  req.PhoneNumber,
		Code:         code,
		ExpiresAt:    now.Add(domain.WhatsAppCodeTTL),
		CreatedAt:    now,
	}
	if err := s.store.Verifications.SaveWhatsAppCode(ctx, v); err != nil {
		return nil, fmt.Errorf("save verification code: %w", err)
	}

	_, err = s.sendWhatsAppTemplate(ctx, &provider.WhatsAppTemplate{
		To:         req.PhoneNumber,
		Name:       s.opts.VerifyTemplate,
		Language:   s.opts.TemplateLanguage,
		Parameters: []string{code},
	})
	if err != nil {
		return nil, &domain.SendError{Failure: domain.Classify(err), Err: err}
	}
	s.logger.Info("whatsapp verification sent", zap.String("subscriber_id", req.SubscriberID))
	return v, nil
}

// ConfirmWhatsApp checks a verification code and, when it matches, marks the
// subscriber's phone number verified. Wrong guesses count towards
// WhatsAppCodeMaxAttempts.
func (s *Service) ConfirmWhatsApp(ctx context.Context, req domain.ConfirmWhatsAppRequest) error {
	v, err := s.store.Verifications.GetWhatsAppCode(ctx, req.SubscriberID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("load verification code: %w", err)
	}

	now := s.now()
	switch {
	case v.VerifiedAt != nil:
		return domain.ErrInvalidCode
	case v.Attempts >= domain.WhatsAppCodeMaxAttempts:
		return domain.ErrTooManyAttempts
	case now.After(v.ExpiresAt):
		return domain.ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(v.Code), []byte(req.Code)) != 1 {
		if err := s.store.Verifications.IncrementWhatsAppAttempts(ctx, req.SubscriberID); err != nil {
			return fmt.Errorf("count verification attempt: %w", err)
		}
		return domain.ErrInvalidCode
	}

	if err := s.store.Verifications.MarkWhatsAppCodeUsed(ctx, req.SubscriberID, now); err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	if err := s.store.Subscribers.MarkWhatsAppVerified(ctx, req.SubscriberID, v.PhoneNumber); err != nil {
		return fmt.Errorf("mark whatsapp verified: %w", err)
	}
	return nil
}

// VerifySubscription consumes a single-use email verification token and
// activates the subscriber. It returns the subscriber id.
func (s *Service) VerifySubscription(ctx context.Context, token string) (string, error) {
	v, err := s.store.Verifications.GetEmailVerification(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("load verification token: %w", err)
	}
	now := s.now()
	if v.VerifiedAt != nil {
		return "", domain.ErrInvalidToken
	}
	if now.After(v.ExpiresAt) {
		return "", domain.ErrTokenExpired
	}

	// Consuming first keeps a replayed token from activating twice.
	if err := s.store.Verifications.MarkEmailVerificationUsed(ctx, token, now); err != nil {
		return "", err
	}
	if err := s.store.Subscribers.MarkEmailVerified(ctx, v.SubscriberID); err != nil {
		return "", fmt.Errorf("activate subscriber: %w", err)
	}
	s.logger.Info("subscription verified", zap.String("subscriber_id", v.SubscriberID))
	return v.SubscriberID, nil
}

func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
