package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/domain"
)

var errNoLongerEligible = errors.New("subscriber no longer eligible for this channel")

// RetryFailedNotifications re-sends failed notifications whose next_retry_at
// has passed. Successes become sent. Failures are rescheduled on the
// 5·3^n minute curve until retry_count reaches MaxRetries, at which point the
// record is terminal and one admin warning summarises the run.
func (s *Service) RetryFailedNotifications(ctx context.Context) (domain.RetryRun, error) {
	if s.email == nil {
		return domain.RetryRun{}, domain.ErrEmailNotConfigured
	}

	var run domain.RetryRun
	err := s.withLock(ctx, JobRetry, func() error {
		due, err := s.store.Notifications.FindDueRetries(ctx, s.now(), s.opts.RetryBatchSize)
		if err != nil {
			return fmt.Errorf("find due retries: %w", err)
		}
		run.Due = len(due)

		r := &retryRun{
			Service:     s,
			quotes:      make(map[string]*domain.Quote),
			subscribers: make(map[string]*domain.Subscriber),
		}
		for _, n := range due {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.retry(ctx, n, &run)
		}

		if run.Exhausted > 0 {
			s.alertExhausted(ctx, run.Exhausted)
		}
		s.logger.Info("retry sweep finished",
			zap.Int("due", run.Due),
			zap.Int("sent", run.Sent),
			zap.Int("rescheduled", run.Rescheduled),
			zap.Int("exhausted", run.Exhausted),
			zap.Int("skipped", run.Skipped),
		)
		return nil
	})
	return run, err
}

// retryRun caches lookups shared by the records of one sweep.
type retryRun struct {
	*Service
	quotes      map[string]*domain.Quote
	subscribers map[string]*domain.Subscriber
}

func (r *retryRun) retry(ctx context.Context, n *domain.Notification, run *domain.RetryRun) {
	log := r.logger.With(
		zap.String("notification_id", n.ID),
		zap.String("channel", string(n.Channel)),
		zap.Int("retry_count", n.RetryCount),
	)

	if n.Channel == domain.ChannelWhatsApp && r.whatsapp == nil {
		run.Skipped++
		return
	}
	allowed, err := r.breakers.Allow(ctx, n.Channel.ServiceName(), r.now())
	if err != nil {
		log.Error("check breaker", zap.Error(err))
		run.Skipped++
		return
	}
	if !allowed {
		run.Skipped++
		return
	}

	q, sub, err := r.load(ctx, n)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, errNoLongerEligible) {
		log.Warn("abandoning retry", zap.Error(err))
		r.abandon(ctx, n, err)
		run.Abandoned++
		return
	}
	if err != nil {
		log.Error("load retry target", zap.Error(err))
		run.Skipped++
		return
	}

	var messageID string
	switch n.Channel {
	case domain.ChannelWhatsApp:
		messageID, err = r.sendWhatsAppQuote(ctx, q, n.Recipient)
	default:
		messageID, err = r.sendEmail(ctx, q, sub)
	}
	if errors.Is(err, domain.ErrBreakerOpen) {
		// Tripped earlier in this sweep; the row keeps its slot.
		run.Skipped++
		return
	}
	retryCount := n.RetryCount + 1

	if err == nil {
		r.markSent(n, messageID)
		n.RetryCount = retryCount
		if _, serr := r.store.Notifications.Save(ctx, n); serr != nil {
			log.Error("record retried send", zap.Error(serr))
		}
		run.Sent++
		return
	}

	f := domain.Classify(err)
	r.markFailed(n, err, f, retryCount)
	if _, serr := r.store.Notifications.Save(ctx, n); serr != nil {
		log.Error("record retry failure", zap.Error(serr))
	}
	switch {
	case n.NextRetryAt != nil:
		r.hooks.OnRetryScheduled(n.Channel)
		run.Rescheduled++
	case !f.Retryable:
		run.Permanent++
	default:
		log.Warn("retries exhausted", zap.Error(err))
		run.Exhausted++
	}
}

func (r *retryRun) load(ctx context.Context, n *domain.Notification) (*domain.Quote, *domain.Subscriber, error) {
	q, ok := r.quotes[n.QuoteID]
	if !ok {
		var err error
		if q, err = r.store.Quotes.GetByID(ctx, n.QuoteID); err != nil {
			return nil, nil, fmt.Errorf("load quote: %w", err)
		}
		r.quotes[n.QuoteID] = q
	}
	sub, ok := r.subscribers[n.SubscriberID]
	if !ok {
		var err error
		if sub, err = r.store.Subscribers.GetByID(ctx, n.SubscriberID); err != nil {
			return nil, nil, fmt.Errorf("load subscriber: %w", err)
		}
		r.subscribers[n.SubscriberID] = sub
	}

	eligible := sub.WantsNewQuoteEmail()
	if n.Channel == domain.ChannelWhatsApp {
		eligible = sub.WantsWhatsApp()
	}
	if !eligible {
		return nil, nil, errNoLongerEligible
	}
	return q, sub, nil
}

// abandon stops retrying n without counting an attempt.
func (r *retryRun) abandon(ctx context.Context, n *domain.Notification, cause error) {
	n.NextRetryAt = nil
	n.ErrorMessage = strPtr(cause.Error())
	n.UpdatedAt = r.now()
	if _, err := r.store.Notifications.Save(ctx, n); err != nil {
		r.logger.Error("record abandoned retry", zap.String("notification_id", n.ID), zap.Error(err))
	}
}

func (s *Service) alertExhausted(ctx context.Context, count int) {
	alert := &domain.AdminNotification{
		ID:       uuid.New().String(),
		Kind:     "retries_exhausted",
		Severity: domain.SeverityWarning,
		Title:    "Notifications permanently failed",
		Message: fmt.Sprintf("%d notification(s) failed %d retries and will not be retried again.",
			count, domain.MaxRetries),
		CreatedAt: s.now(),
	}
	if err := s.store.Admin.CreateAdminNotification(ctx, alert); err != nil {
		s.logger.Error("create exhausted-retries alert", zap.Error(err))
	}
}
