package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quotecast/notifier/internal/domain"
)

// sendOutcome is the result of one subscriber's delivery inside a batch.
type sendOutcome int

const (
	outcomeSent sendOutcome = iota
	outcomeSkipped
	outcomeRetryScheduled
	outcomeDeferred
	outcomeFailed
)

var errBreakerDeferred = errors.New("email circuit breaker open, send deferred")

// dispatch fans q out to subscribers in sequential batches. Sends within a
// batch run concurrently and every one of them settles before the next batch
// starts; a failed send never cancels its siblings. The email breaker is
// consulted before each batch and again before every send; once it is open
// the remaining subscribers are stored as deferred retries instead of being
// attempted.
func (s *Service) dispatch(ctx context.Context, q *domain.Quote, subscribers []*domain.Subscriber) (domain.DispatchResult, error) {
	res := domain.DispatchResult{QuoteID: q.ID, Subscribers: len(subscribers)}
	service := domain.ChannelEmail.ServiceName()
	size := s.opts.BatchSize

	for start := 0; start < len(subscribers); start += size {
		end := min(start+size, len(subscribers))

		allowed, err := s.breakers.Allow(ctx, service, s.now())
		if err != nil {
			return res, fmt.Errorf("check email breaker: %w", err)
		}
		if !allowed {
			s.logger.Warn("email breaker open, deferring remaining subscribers",
				zap.String("quote_id", q.ID),
				zap.Int("remaining", len(subscribers)-start),
			)
			for _, sub := range subscribers[start:] {
				if s.deferSend(ctx, q, sub) {
					res.Deferred++
				} else {
					res.Skipped++
				}
			}
			break
		}

		batch := subscribers[start:end]
		outcomes := make([]sendOutcome, len(batch))

		// errgroup without a derived context: goroutines never return an
		// error, so Wait is an all-settled join.
		var g errgroup.Group
		for i, sub := range batch {
			i, sub := i, sub
			g.Go(func() error {
				outcomes[i] = s.deliverEmail(ctx, q, sub)
				return nil
			})
		}
		_ = g.Wait()

		res.Batches++
		for _, o := range outcomes {
			switch o {
			case outcomeSent:
				res.Sent++
			case outcomeSkipped:
				res.Skipped++
			case outcomeRetryScheduled:
				res.Failed++
				res.RetriesScheduled++
			case outcomeDeferred:
				res.Deferred++
			case outcomeFailed:
				res.Failed++
			}
		}
		s.logger.Info("batch dispatched",
			zap.String("quote_id", q.ID),
			zap.Int("batch", res.Batches),
			zap.Int("size", len(batch)),
		)
	}

	if res.Sent > 0 {
		if err := s.store.Metrics.IncrementDaily(ctx, s.now(), domain.MetricNotificationsSent, res.Sent); err != nil {
			s.logger.Warn("increment daily metric", zap.Error(err))
		}
	}
	return res, nil
}

// deliverEmail sends q to one subscriber and records the outcome. A
// subscriber that already has a record for this quote is skipped: sent rows
// are final and failed rows belong to the retry sweep.
func (s *Service) deliverEmail(ctx context.Context, q *domain.Quote, sub *domain.Subscriber) sendOutcome {
	log := s.logger.With(zap.String("quote_id", q.ID), zap.String("subscriber_id", sub.ID))

	existing, err := s.store.Notifications.Find(ctx, sub.ID, q.ID, domain.ChannelEmail)
	switch {
	case err == nil:
		if !existing.IsSent() {
			log.Debug("existing failed record left to the retry sweep")
		}
		return outcomeSkipped
	case !errors.Is(err, domain.ErrNotFound):
		// Sending without knowing whether we already did risks a duplicate.
		log.Error("idempotency lookup failed", zap.Error(err))
		return outcomeFailed
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

	messageID, sendErr := s.sendEmail(ctx, q, sub)
	if errors.Is(sendErr, domain.ErrBreakerOpen) {
		// Tripped by a sibling in this batch.
		if !s.saveDeferred(ctx, q, sub) {
			return outcomeFailed
		}
		return outcomeDeferred
	}
	if sendErr == nil {
		s.markSent(n, messageID)
		if _, err := s.store.Notifications.Save(ctx, n); err != nil {
			// The email went out; a retry would duplicate it, so only log.
			log.Error("record sent notification", zap.Error(err))
		}
		return outcomeSent
	}

	f := domain.Classify(sendErr)
	s.markFailed(n, sendErr, f, 0)
	log.Warn("email send failed",
		zap.String("kind", string(f.Kind)),
		zap.Bool("retryable", f.Retryable),
		zap.Error(sendErr),
	)
	if _, err := s.store.Notifications.Save(ctx, n); err != nil {
		log.Error("record failed notification", zap.Error(err))
		return outcomeFailed
	}
	if n.NextRetryAt != nil {
		s.hooks.OnRetryScheduled(domain.ChannelEmail)
		return outcomeRetryScheduled
	}
	return outcomeFailed
}

// sendEmail renders, rate-limits and sends one message, feeding the result
// into metrics and the email breaker. It returns ErrBreakerOpen without
// sending when the breaker is open at the moment of the send.
func (s *Service) sendEmail(ctx context.Context, q *domain.Quote, sub *domain.Subscriber) (string, error) {
	service := domain.ChannelEmail.ServiceName()
	msg, err := s.renderer.Render(q, sub)
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	if err := s.limiter.Wait(ctx, domain.ChannelEmail); err != nil {
		return "", err
	}
	allowed, err := s.breakers.Allow(ctx, service, s.now())
	if err != nil {
		return "", fmt.Errorf("check email breaker: %w", err)
	}
	if !allowed {
		return "", domain.ErrBreakerOpen
	}

	start := time.Now()
	resp, err := s.email.SendEmail(ctx, msg)
	f := domain.Classify(err)
	s.recordBreaker(ctx, service, err, f)
	if err != nil {
		s.hooks.OnFailed(domain.ChannelEmail, f.Kind)
		return "", err
	}
	s.hooks.OnSent(domain.ChannelEmail, time.Since(start))
	return resp.MessageID, nil
}

// deferSend stores a not-attempted send as a retry due when the breaker's
// cooldown ends. It reports false when a record already exists.
func (s *Service) deferSend(ctx context.Context, q *domain.Quote, sub *domain.Subscriber) bool {
	_, err := s.store.Notifications.Find(ctx, sub.ID, q.ID, domain.ChannelEmail)
	if err == nil {
		return false
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.Error("idempotency lookup failed", zap.String("subscriber_id", sub.ID), zap.Error(err))
		return false
	}
	return s.saveDeferred(ctx, q, sub)
}

// saveDeferred stores the deferred retry row for a subscriber known to have
// no record for q.
func (s *Service) saveDeferred(ctx context.Context, q *domain.Quote, sub *domain.Subscriber) bool {
	now := s.now()
	n := &domain.Notification{
		ID:           uuid.New().String(),
		SubscriberID: sub.ID,
		QuoteID:      q.ID,
		Channel:      domain.ChannelEmail,
		Recipient:    sub.Email,
		CreatedAt:    now,
	}
	s.markFailed(n, errBreakerDeferred, domain.Classify(errBreakerDeferred), 0)
	if _, err := s.store.Notifications.Save(ctx, n); err != nil {
		s.logger.Error("record deferred notification", zap.String("subscriber_id", sub.ID), zap.Error(err))
		return false
	}
	return true
}

func (s *Service) markSent(n *domain.Notification, messageID string) {
	now := s.now()
	n.Status = domain.StatusSent
	n.SentAt = timePtr(now)
	n.NextRetryAt = nil
	n.ErrorKind = nil
	n.ErrorMessage = nil
	if messageID != "" {
		n.ProviderMessageID = strPtr(messageID)
	}
	n.UpdatedAt = now
}

// markFailed stores the classification on n. retryCount is the value the
// record will carry; a retryable failure below the cap is scheduled from it.
func (s *Service) markFailed(n *domain.Notification, err error, f domain.Failure, retryCount int) {
	now := s.now()
	n.Status = domain.StatusFailed
	n.RetryCount = retryCount
	n.ErrorKind = strPtr(string(f.Kind))
	n.ErrorMessage = strPtr(err.Error())
	n.NextRetryAt = nil
	if f.Retryable && retryCount < domain.MaxRetries {
		n.NextRetryAt = timePtr(domain.NextRetryAt(now, retryCount))
	}
	n.UpdatedAt = now
}
