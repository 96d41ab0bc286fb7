package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/domain"
)

// whatsAppFollowUpPriority ranks WhatsApp quote sends below producer-enqueued
// work of default priority.
const whatsAppFollowUpPriority = 0

// NotifyQuote dispatches a live quote to every notifiable subscriber. It is
// the change-event path: the send-quote-notification endpoint and the
// quote_live listener both end here.
func (s *Service) NotifyQuote(ctx context.Context, quoteID string) (domain.DispatchResult, error) {
	if s.email == nil {
		return domain.DispatchResult{}, domain.ErrEmailNotConfigured
	}

	q, err := s.store.Quotes.GetByID(ctx, quoteID)
	if err != nil {
		return domain.DispatchResult{}, fmt.Errorf("load quote %s: %w", quoteID, err)
	}
	if !q.IsLive() {
		return domain.DispatchResult{}, domain.ErrQuoteNotLive
	}

	var res domain.DispatchResult
	err = s.withLock(ctx, quoteLockName(q.ID), func() error {
		var err error
		res, err = s.notifyLocked(ctx, q)
		return err
	})
	return res, err
}

// ProcessScheduledQuotes promotes every scheduled quote whose post date has
// arrived (UTC day granularity) and dispatches each one. If the promotion
// fails nothing is sent. One quote's dispatch error does not stop the others.
func (s *Service) ProcessScheduledQuotes(ctx context.Context) (domain.ScheduledRun, error) {
	if s.email == nil {
		return domain.ScheduledRun{}, domain.ErrEmailNotConfigured
	}

	var run domain.ScheduledRun
	err := s.withLock(ctx, JobScheduledQuotes, func() error {
		cutoff := domain.DayStart(s.now())
		due, err := s.store.Quotes.FindDueScheduled(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("find due quotes: %w", err)
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]string, len(due))
		for i, q := range due {
			ids[i] = q.ID
		}
		if err := s.store.Quotes.PromoteToLive(ctx, ids); err != nil {
			return fmt.Errorf("promote %d quotes: %w", len(ids), err)
		}
		run.Promoted = len(due)
		s.logger.Info("scheduled quotes promoted", zap.Int("count", len(due)))

		for _, q := range due {
			q.Status = domain.QuoteLive
			var res domain.DispatchResult
			err := s.withLock(ctx, quoteLockName(q.ID), func() error {
				var err error
				res, err = s.notifyLocked(ctx, q)
				return err
			})
			if err != nil {
				// ErrJobRunning means the quote_live listener got there first.
				if !errors.Is(err, domain.ErrJobRunning) {
					s.logger.Error("dispatch scheduled quote", zap.String("quote_id", q.ID), zap.Error(err))
				}
				res.QuoteID = q.ID
				res.Error = err.Error()
			}
			run.Results = append(run.Results, res)
			run.Totals.Add(res)
		}
		return nil
	})
	return run, err
}

func (s *Service) notifyLocked(ctx context.Context, q *domain.Quote) (domain.DispatchResult, error) {
	subscribers, err := s.store.Subscribers.ListNotifiable(ctx)
	if err != nil {
		return domain.DispatchResult{QuoteID: q.ID}, fmt.Errorf("list subscribers: %w", err)
	}
	if len(subscribers) == 0 {
		s.logger.Info("no subscribers to notify", zap.String("quote_id", q.ID))
	}

	res, err := s.dispatch(ctx, q, subscribers)
	if err != nil {
		return res, err
	}
	res.WhatsAppQueued = s.enqueueWhatsApp(ctx, q)

	s.logger.Info("quote dispatched",
		zap.String("quote_id", q.ID),
		zap.Int("subscribers", res.Subscribers),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int("deferred", res.Deferred),
	)
	return res, nil
}

// enqueueWhatsApp hands WhatsApp delivery of q to the notification queue so
// it is paced by the queue processor rather than the email fan-out.
func (s *Service) enqueueWhatsApp(ctx context.Context, q *domain.Quote) int {
	if s.whatsapp == nil {
		return 0
	}
	subscribers, err := s.store.Subscribers.ListWhatsAppNotifiable(ctx)
	if err != nil {
		s.logger.Error("list whatsapp subscribers", zap.String("quote_id", q.ID), zap.Error(err))
		return 0
	}

	queued := 0
	now := s.now()
	for _, sub := range subscribers {
		payload, err := json.Marshal(domain.WhatsAppPayload{
			SubscriberID: sub.ID,
			PhoneNumber:  *sub.PhoneNumber,
			QuoteID:      q.ID,
		})
		if err != nil {
			continue
		}
		item := &domain.QueueItem{
			ID:            uuid.New().String(),
			Kind:          domain.QueueWhatsAppMessage,
			ServiceName:   domain.QueueWhatsAppMessage.ServiceName(),
			Priority:      whatsAppFollowUpPriority,
			Payload:       payload,
			MaxAttempts:   domain.DefaultQueueMaxAttempts,
			NextAttemptAt: now,
			Status:        domain.QueuePending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.store.Queue.Enqueue(ctx, item); err != nil {
			s.logger.Error("enqueue whatsapp send", zap.String("subscriber_id", sub.ID), zap.Error(err))
			continue
		}
		queued++
	}
	return queued
}

func quoteLockName(id string) string { return "notify-quote:" + id }
