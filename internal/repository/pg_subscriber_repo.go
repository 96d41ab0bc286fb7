package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quotecast/notifier/internal/domain"
)

type pgSubscriberRepository struct {
	pool *pgxpool.Pool
}

// NewPgSubscriberRepository returns a SubscriberRepository over the users table.
func NewPgSubscriberRepository(pool *pgxpool.Pool) SubscriberRepository {
	return &pgSubscriberRepository{pool: pool}
}

const subscriberColumns = `
	id, email, COALESCE(name, ''), phone_number, status, email_status,
	notify_new_quotes, notify_weekly_digest, notify_whatsapp, whatsapp_verified,
	email_bounce_count, created_at`

func (r *pgSubscriberRepository) GetByID(ctx context.Context, id string) (*domain.Subscriber, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+subscriberColumns+` FROM users WHERE id = $1`, id)
	s, err := scanSubscriber(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return s, nil
}

func (r *pgSubscriberRepository) ListNotifiable(ctx context.Context) ([]*domain.Subscriber, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+subscriberColumns+`
		FROM users
		WHERE status = 'active'
		  AND notify_new_quotes = TRUE
		  AND email_status = 'verified'
		  AND email_bounce_count < $1
		ORDER BY created_at ASC`, domain.MaxBounceCount)
	if err != nil {
		return nil, fmt.Errorf("list notifiable subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := []*domain.Subscriber{}
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subscribers = append(subscribers, s)
	}
	return subscribers, rows.Err()
}

func (r *pgSubscriberRepository) ListWhatsAppNotifiable(ctx context.Context) ([]*domain.Subscriber, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+subscriberColumns+`
		FROM users
		WHERE status = 'active'
		  AND notify_whatsapp = TRUE
		  AND whatsapp_verified = TRUE
		  AND phone_number IS NOT NULL
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list whatsapp subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := []*domain.Subscriber{}
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subscribers = append(subscribers, s)
	}
	return subscribers, rows.Err()
}

func (r *pgSubscriberRepository) MarkEmailVerified(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET email_status = 'verified', status = 'active', updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgSubscriberRepository) MarkWhatsAppVerified(ctx context.Context, id, phoneNumber string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET whatsapp_verified = TRUE, phone_number = $1, updated_at = NOW()
		WHERE id = $2`, phoneNumber, id)
	if err != nil {
		return fmt.Errorf("mark whatsapp verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSubscriber(row pgx.Row) (*domain.Subscriber, error) {
	var s domain.Subscriber
	if err := row.Scan(&s.ID, &s.Email, &s.Name, &s.PhoneNumber, &s.Status, &s.EmailStatus,
		&s.NotifyNewQuotes, &s.NotifyWeeklyDigest, &s.NotifyWhatsApp, &s.WhatsAppVerified,
		&s.EmailBounceCount, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
