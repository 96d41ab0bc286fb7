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

type pgAdminRepository struct {
	pool *pgxpool.Pool
}

func NewPgAdminRepository(pool *pgxpool.Pool) AdminRepository {
	return &pgAdminRepository{pool: pool}
}

func (r *pgAdminRepository) CreateAdminNotification(ctx context.Context, n *domain.AdminNotification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admin_notifications (id, kind, severity, title, message, read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		n.ID, n.Kind, n.Severity, n.Title, n.Message, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create admin notification: %w", err)
	}
	return nil
}

type pgMetricsRepository struct {
	pool *pgxpool.Pool
}

func NewPgMetricsRepository(pool *pgxpool.Pool) MetricsRepository {
	return &pgMetricsRepository{pool: pool}
}

func (r *pgMetricsRepository) IncrementDaily(ctx context.Context, day time.Time, name string, delta int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_metrics (day, metric, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (day, metric) DO UPDATE SET value = notification_metrics.value + EXCLUDED.value`,
		domain.DayStart(day), name, delta)
	if err != nil {
		return fmt.Errorf("increment daily metric %s: %w", name, err)
	}
	return nil
}

type pgVerificationRepository struct {
	pool *pgxpool.Pool
}

func NewPgVerificationRepository(pool *pgxpool.Pool) VerificationRepository {
	return &pgVerificationRepository{pool: pool}
}

func (r *pgVerificationRepository) GetEmailVerification(ctx context.Context, token string) (*domain.EmailVerification, error) {
	var v domain.EmailVerification
	err := r.pool.QueryRow(ctx, `
		SELECT token, user_id, expires_at, verified_at, created_at
		FROM email_verifications WHERE token = $1`, token).
		Scan(&v.Token, &v.SubscriberID, &v.ExpiresAt, &v.VerifiedAt, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email verification: %w", err)
	}
	return &v, nil
}

func (r *pgVerificationRepository) MarkEmailVerificationUsed(ctx context.Context, token string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE email_verifications SET verified_at = $1
		WHERE token = $2 AND verified_at IS NULL`, at, token)
	if err != nil {
		return fmt.Errorf("mark email verification used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidToken
	}
	return nil
}

func (r *pgVerificationRepository) SaveWhatsAppCode(ctx context.Context, v *domain.WhatsAppVerification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO whatsapp_verifications
			(user_id, phone_number, code, attempts, expires_at, verified_at, created_at)
		VALUES ($1,$2,$3,0,$4,NULL,$5)
		ON CONFLICT (user_id) DO UPDATE SET
			phone_number = EXCLUDED.phone_number,
			code         = EXCLUDED.code,
			attempts     = 0,
			expires_at   = EXCLUDED.expires_at,
			verified_at  = NULL,
			created_at   = EXCLUDED.created_at`,
		v.SubscriberID, v.PhoneNumber, v.Code, v.ExpiresAt, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("save whatsapp code: %w", err)
	}
	return nil
}

func (r *pgVerificationRepository) GetWhatsAppCode(ctx context.Context, subscriberID string) (*domain.WhatsAppVerification, error) {
	var v domain.WhatsAppVerification
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, phone_number, code, attempts, expires_at, verified_at, created_at
		FROM whatsapp_verifications WHERE user_id = $1`, subscriberID).
		Scan(&v.SubscriberID, &v.PhoneNumber, &v.Code, &v.Attempts, &v.ExpiresAt, &v.VerifiedAt, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get whatsapp code: %w", err)
	}
	return &v, nil
}

func (r *pgVerificationRepository) IncrementWhatsAppAttempts(ctx context.Context, subscriberID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE whatsapp_verifications SET attempts = attempts + 1 WHERE user_id = $1`, subscriberID)
	return err
}

func (r *pgVerificationRepository) MarkWhatsAppCodeUsed(ctx context.Context, subscriberID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE whatsapp_verifications SET verified_at = $1 WHERE user_id = $2`, at, subscriberID)
	return err
}
