package repository

import (
	"context"
	"time"

	"github.com/quotecast/notifier/internal/domain"
)

// Persistence ports for the notification pipeline.
// The pgx implementations live in pg_*.go; tests use the hand-written
// in-memory versions in mock_*.go.

type QuoteRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Quote, error)
	// FindDueScheduled returns scheduled quotes whose post_date is on or before cutoff.
	FindDueScheduled(ctx context.Context, cutoff time.Time) ([]*domain.Quote, error)
	// LatestLive returns the live quote with the most recent post_date.
	LatestLive(ctx context.Context) (*domain.Quote, error)
	// PromoteToLive moves every given quote to status=live in one statement.
	PromoteToLive(ctx context.Context, ids []string) error
}

type SubscriberRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Subscriber, error)
	// ListNotifiable returns active, verified subscribers opted into new-quote
	// email with fewer than three bounces.
	ListNotifiable(ctx context.Context) ([]*domain.Subscriber, error)
	// ListWhatsAppNotifiable returns active subscribers with a verified phone
	// number who opted into WhatsApp.
	ListWhatsAppNotifiable(ctx context.Context) ([]*domain.Subscriber, error)
	MarkEmailVerified(ctx context.Context, id string) error
	MarkWhatsAppVerified(ctx context.Context, id, phoneNumber string) error
}

type NotificationRepository interface {
	Find(ctx context.Context, subscriberID, quoteID string, ch domain.Channel) (*domain.Notification, error)
	// Save upserts on (subscriber_id, quote_id, channel). A stored row with
	// status=sent is never overwritten; applied is false in that case.
	Save(ctx context.Context, n *domain.Notification) (applied bool, err error)
	FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error)
}

type BreakerRepository interface {
	Get(ctx context.Context, service string) (*domain.CircuitBreaker, error)
	Save(ctx context.Context, b *domain.CircuitBreaker) error
}

type QueueRepository interface {
	Enqueue(ctx context.Context, item *domain.QueueItem) error
	// FetchDue returns pending items with next_attempt_at <= now, plus
	// processing items whose lease has expired, ordered by priority DESC,
	// created_at ASC.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*domain.QueueItem, error)
	MarkProcessing(ctx context.Context, id string, at time.Time) error
	MarkCompleted(ctx context.Context, id string, at time.Time) error
	MarkAttemptFailed(ctx context.Context, id string, attempts int, next time.Time, status domain.QueueStatus, errMsg string) error
}

type AdminRepository interface {
	CreateAdminNotification(ctx context.Context, n *domain.AdminNotification) error
}

type MetricsRepository interface {
	// IncrementDaily upserts (day, name) and adds delta to its value.
	IncrementDaily(ctx context.Context, day time.Time, name string, delta int) error
}

type VerificationRepository interface {
	GetEmailVerification(ctx context.Context, token string) (*domain.EmailVerification, error)
	MarkEmailVerificationUsed(ctx context.Context, token string, at time.Time) error
	SaveWhatsAppCode(ctx context.Context, v *domain.WhatsAppVerification) error
	GetWhatsAppCode(ctx context.Context, subscriberID string) (*domain.WhatsAppVerification, error)
	IncrementWhatsAppAttempts(ctx context.Context, subscriberID string) error
	MarkWhatsAppCodeUsed(ctx context.Context, subscriberID string, at time.Time) error
}

// Store bundles every repository so constructors take one dependency.
type Store struct {
	Quotes        QuoteRepository
	Subscribers   SubscriberRepository
	Notifications NotificationRepository
	Breakers      BreakerRepository
	Queue         QueueRepository
	Admin         AdminRepository
	Metrics       MetricsRepository
	Verifications VerificationRepository
}
