package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quotecast/notifier/internal/domain"
)

type pgNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewPgNotificationRepository returns a NotificationRepository backed by the
// email_notifications table.
func NewPgNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepository{pool: pool}
}

const notificationColumns = `
	id, subscriber_id, quote_id, channel, recipient, status, retry_count,
	next_retry_at, error_kind, error_message, provider_message_id, sent_at,
	created_at, updated_at`

func (r *pgNotificationRepository) Find(ctx context.Context, subscriberID, quoteID string, ch domain.Channel) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+notificationColumns+`
		FROM email_notifications
		WHERE subscriber_id = $1 AND quote_id = $2 AND channel = $3`,
		subscriberID, quoteID, ch)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find notification: %w", err)
	}
	return n, nil
}

// Save relies on the unique (subscriber_id, quote_id, channel) constraint and
// the WHERE clause of the conflict update: sent rows are immutable even when
// two invocations race on the same subscriber.
func (r *pgNotificationRepository) Save(ctx context.Context, n *domain.Notification) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO email_notifications
			(id, subscriber_id, quote_id, channel, recipient, status, retry_count,
			 next_retry_at, error_kind, error_message, provider_message_id, sent_at,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (subscriber_id, quote_id, channel) DO UPDATE SET
			recipient           = EXCLUDED.recipient,
			status              = EXCLUDED.status,
			retry_count         = EXCLUDED.retry_count,
			next_retry_at       = EXCLUDED.next_retry_at,
			error_kind          = EXCLUDED.error_kind,
			error_message       = EXCLUDED.error_message,
			provider_message_id = EXCLUDED.provider_message_id,
			sent_at             = EXCLUDED.sent_at,
			updated_at          = EXCLUDED.updated_at
		WHERE email_notifications.status <> 'sent'`,
		n.ID, n.SubscriberID, n.QuoteID, n.Channel, n.Recipient, n.Status, n.RetryCount,
		n.NextRetryAt, n.ErrorKind, n.ErrorMessage, n.ProviderMessageID, n.SentAt,
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("save notification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgNotificationRepository) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+notificationColumns+`
		FROM email_notifications
		WHERE status = 'failed'
		  AND retry_count < $1
		  AND next_retry_at IS NOT NULL
		  AND next_retry_at <= $2
		ORDER BY next_retry_at ASC
		LIMIT $3`, domain.MaxRetries, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due retries: %w", err)
	}
	defer rows.Close()

	var result []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// scanNotification reads a single notification row from any pgx row type.
func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID, &n.SubscriberID, &n.QuoteID, &n.Channel, &n.Recipient, &n.Status,
		&n.RetryCount, &n.NextRetryAt, &n.ErrorKind, &n.ErrorMessage,
		&n.ProviderMessageID, &n.SentAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
