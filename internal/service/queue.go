package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/domain"
)

// Queue item outcomes, used as the metric label.
const (
	queueCompleted = "completed"
	queueRetrying  = "retrying"
	queueFailed    = "failed"
	queueSkipped   = "skipped"
)

// Enqueue validates a producer request and stores it as a pending item that
// is due immediately.
func (s *Service) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.QueueItem, error) {
	if err := s.validatePayload(req.Kind, req.Payload); err != nil {
		return nil, err
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultQueueMaxAttempts
	}
	now := s.now()
	item := &domain.QueueItem{
		ID:            uuid.New().String(),
		Kind:          req.Kind,
		ServiceName:   req.Kind.ServiceName(),
		Priority:      req.Priority,
		Payload:       req.Payload,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now,
		Status:        domain.QueuePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Queue.Enqueue(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	return item, nil
}

// ProcessQueue runs one pass over the notification queue: up to
// QueuePollLimit due items, highest priority first. Items whose service
// breaker is open stay pending untouched. A failed item is retried after
// 2^attempts minutes until it reaches max_attempts.
func (s *Service) ProcessQueue(ctx context.Context) (domain.QueueOutcome, error) {
	var out domain.QueueOutcome
	err := s.withLock(ctx, JobQueue, func() error {
		items, err := s.store.Queue.FetchDue(ctx, s.now(), domain.QueuePollLimit)
		if err != nil {
			return fmt.Errorf("fetch due queue items: %w", err)
		}
		out.Fetched = len(items)

		for _, it := range items {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			outcome := s.processItem(ctx, it)
			s.hooks.OnQueueItem(it.Kind, outcome)
			switch outcome {
			case queueCompleted:
				out.Completed++
			case queueRetrying:
				out.Retrying++
			case queueFailed:
				out.Failed++
			case queueSkipped:
				out.Skipped++
			}
		}
		if out.Fetched > 0 {
			s.logger.Info("queue pass finished",
				zap.Int("fetched", out.Fetched),
				zap.Int("completed", out.Completed),
				zap.Int("retrying", out.Retrying),
				zap.Int("failed", out.Failed),
				zap.Int("skipped", out.Skipped),
			)
		}
		return nil
	})
	return out, err
}

func (s *Service) processItem(ctx context.Context, it *domain.QueueItem) string {
	log := s.logger.With(zap.String("item_id", it.ID), zap.String("kind", string(it.Kind)))

	service := it.ServiceName
	if service == "" {
		service = it.Kind.ServiceName()
	}
	allowed, err := s.breakers.Allow(ctx, service, s.now())
	if err != nil {
		log.Error("check breaker", zap.Error(err))
		return queueSkipped
	}
	if !allowed {
		return queueSkipped
	}

	if err := s.store.Queue.MarkProcessing(ctx, it.ID, s.now()); err != nil {
		log.Error("mark processing", zap.Error(err))
		return queueSkipped
	}

	execErr := s.execute(ctx, it)
	now := s.now()
	if execErr == nil {
		if err := s.store.Queue.MarkCompleted(ctx, it.ID, now); err != nil {
			log.Error("mark completed", zap.Error(err))
		}
		if err := s.store.Metrics.IncrementDaily(ctx, now, domain.MetricQueueProcessed, 1); err != nil {
			log.Warn("increment daily metric", zap.Error(err))
		}
		return queueCompleted
	}

	if errors.Is(execErr, domain.ErrBreakerOpen) {
		// Tripped by an earlier item in this pass: hand the item back as it was.
		if err := s.store.Queue.MarkAttemptFailed(ctx, it.ID, it.Attempts, it.NextAttemptAt, domain.QueuePending, execErr.Error()); err != nil {
			log.Error("release queue item", zap.Error(err))
		}
		return queueSkipped
	}

	attempts := it.Attempts + 1
	status := domain.QueuePending
	if attempts >= it.MaxAttempts || permanent(execErr) {
		status = domain.QueueFailed
	}
	next := now.Add(domain.QueueBackoff(attempts))
	if err := s.store.Queue.MarkAttemptFailed(ctx, it.ID, attempts, next, status, execErr.Error()); err != nil {
		log.Error("mark attempt failed", zap.Error(err))
	}
	log.Warn("queue item failed",
		zap.Int("attempts", attempts),
		zap.String("status", string(status)),
		zap.Error(execErr),
	)
	if status == domain.QueueFailed {
		return queueFailed
	}
	return queueRetrying
}

// execute performs the work an item describes. Provider outcomes reach the
// breaker inside the send helpers.
func (s *Service) execute(ctx context.Context, it *domain.QueueItem) error {
	if err := s.validatePayload(it.Kind, it.Payload); err != nil {
		return err
	}

	switch it.Kind {
	case domain.QueueQuoteEmail:
		var p domain.QuoteEmailPayload
		_ = json.Unmarshal(it.Payload, &p)
		return s.sendQueuedEmail(ctx, p)

	case domain.QueueWhatsAppMessage:
		if s.whatsapp == nil {
			return domain.ErrWhatsAppNotConfigured
		}
		var p domain.WhatsAppPayload
		_ = json.Unmarshal(it.Payload, &p)
		q, err := s.queuedQuote(ctx, p.QuoteID)
		if err != nil {
			return err
		}
		_, err = s.deliverWhatsApp(ctx, q, p.SubscriberID, p.PhoneNumber, false)
		return err
	}
	return domain.ErrUnknownQueueKind
}

func (s *Service) sendQueuedEmail(ctx context.Context, p domain.QuoteEmailPayload) error {
	if s.email == nil {
		return domain.ErrEmailNotConfigured
	}
	q, err := s.queuedQuote(ctx, p.QuoteID)
	if err != nil {
		return err
	}
	sub, err := s.store.Subscribers.GetByID(ctx, p.SubscriberID)
	if err != nil {
		return fmt.Errorf("load subscriber: %w", err)
	}

	existing, err := s.store.Notifications.Find(ctx, sub.ID, q.ID, domain.ChannelEmail)
	switch {
	case err == nil && existing.IsSent():
		return nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("idempotency lookup: %w", err)
	}

	now := s.now()
	n := &domain.Notification{
		ID:           uuid.New().String(),
		SubscriberID: sub.ID,
		QuoteID:      q.ID,
		Channel:      domain.ChannelEmail,
		Recipient:    sub.Email,
		CreatedAt:    now,
	}
	if existing != nil {
		n.ID = existing.ID
		n.CreatedAt = existing.CreatedAt
		n.RetryCount = existing.RetryCount
	}

	messageID, sendErr := s.sendEmail(ctx, q, sub)
	if errors.Is(sendErr, domain.ErrBreakerOpen) {
		return sendErr
	}
	if sendErr == nil {
		s.markSent(n, messageID)
		if _, err := s.store.Notifications.Save(ctx, n); err != nil {
			s.logger.Error("record queued send", zap.String("subscriber_id", sub.ID), zap.Error(err))
		}
		return nil
	}

	f := domain.Classify(sendErr)
	s.markFailed(n, sendErr, f, n.RetryCount)
	n.NextRetryAt = queueOwnedRetry(existing, f)
	if _, err := s.store.Notifications.Save(ctx, n); err != nil {
		s.logger.Error("record queued failure", zap.String("subscriber_id", sub.ID), zap.Error(err))
	}
	return &domain.SendError{Failure: f, Err: sendErr}
}

// queueOwnedRetry is the next_retry_at a queue-driven failure leaves on the
// notification row. The queue owns the retries of rows it created; a row the
// retry sweep already scheduled keeps its slot unless the failure is
// permanent.
func queueOwnedRetry(existing *domain.Notification, f domain.Failure) *time.Time {
	if existing == nil || !f.Retryable {
		return nil
	}
	return existing.NextRetryAt
}

// queuedQuote loads the quote for a queue payload; an empty id means the
// latest live quote.
func (s *Service) queuedQuote(ctx context.Context, id string) (*domain.Quote, error) {
	var (
		q   *domain.Quote
		err error
	)
	if id == "" {
		q, err = s.store.Quotes.LatestLive(ctx)
	} else {
		q, err = s.store.Quotes.GetByID(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load quote: %w", err)
	}
	return q, nil
}

func (s *Service) validatePayload(kind domain.QueueKind, raw json.RawMessage) error {
	var payload any
	switch kind {
	case domain.QueueQuoteEmail:
		payload = &domain.QuoteEmailPayload{}
	case domain.QueueWhatsAppMessage:
		payload = &domain.WhatsAppPayload{}
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownQueueKind, kind)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return fmt.Errorf("%w: payload: %v", domain.ErrInvalidRequest, err)
	}
	if err := s.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: payload: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

// permanent reports whether retrying err can never succeed.
func permanent(err error) bool {
	var sendErr *domain.SendError
	if errors.As(err, &sendErr) {
		return !sendErr.Failure.Retryable
	}
	return errors.Is(err, domain.ErrInvalidRequest) ||
		errors.Is(err, domain.ErrUnknownQueueKind) ||
		errors.Is(err, domain.ErrNotFound)
}
