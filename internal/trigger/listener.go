// Package trigger turns quote status changes in Postgres into dispatches.
// A database trigger publishes the quote id on the quote_live channel when a
// quote becomes live; Listener receives it over LISTEN and calls NotifyQuote.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/domain"
)

// Channel is the Postgres notification channel written by the quotes trigger.
const Channel = "quote_live"

// QuoteNotifier dispatches a live quote.
type QuoteNotifier interface {
	NotifyQuote(ctx context.Context, quoteID string) (domain.DispatchResult, error)
}

// notificationSource is the part of *pgx.Conn the listen loop needs.
type notificationSource interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

type Listener struct {
	pool           *pgxpool.Pool
	notifier       QuoteNotifier
	logger         *zap.Logger
	reconnectDelay time.Duration
	// Notifications are handed to a single dispatch goroutine so a long fan-out
	// does not stall the connection.
	pending chan string
}

func NewListener(pool *pgxpool.Pool, notifier QuoteNotifier, logger *zap.Logger) *Listener {
	return &Listener{
		pool:           pool,
		notifier:       notifier,
		logger:         logger.With(zap.String("component", "quote_live_listener")),
		reconnectDelay: 5 * time.Second,
		pending:        make(chan string, 256),
	}
}

// Run listens until ctx is cancelled, reconnecting after connection errors.
func (l *Listener) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.dispatchLoop(ctx)
	}()

	l.logger.Info("listener started", zap.String("channel", Channel))
	for ctx.Err() == nil {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			break
		}
		l.logger.Error("listen connection lost", zap.Error(err), zap.Duration("retry_in", l.reconnectDelay))
		select {
		case <-ctx.Done():
		case <-time.After(l.reconnectDelay):
		}
	}
	<-done
	l.logger.Info("listener stopped")
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen %s: %w", Channel, err)
	}
	return l.consume(ctx, conn.Conn())
}

// consume forwards notification payloads until the source fails.
func (l *Listener) consume(ctx context.Context, src notificationSource) error {
	for {
		n, err := src.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Channel != Channel || n.Payload == "" {
			continue
		}
		select {
		case l.pending <- n.Payload:
		default:
			// The scheduled sweep and the send-quote-notification endpoint
			// remain as fallbacks for a dropped event.
			l.logger.Warn("dispatch backlog full, dropping event", zap.String("quote_id", n.Payload))
		}
	}
}

func (l *Listener) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-l.pending:
			l.handle(ctx, id)
		}
	}
}

func (l *Listener) handle(ctx context.Context, quoteID string) {
	log := l.logger.With(zap.String("quote_id", quoteID))
	res, err := l.notifier.NotifyQuote(ctx, quoteID)
	switch {
	case errors.Is(err, domain.ErrJobRunning):
		log.Debug("quote already being dispatched")
	case errors.Is(err, domain.ErrQuoteNotLive):
		log.Debug("quote no longer live")
	case err != nil:
		log.Error("dispatch from quote_live event failed", zap.Error(err))
	default:
		log.Info("quote_live event dispatched",
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
		)
	}
}
