package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quotecast/notifier/internal/domain"
)

type pgQueueRepository struct {
	pool *pgxpool.Pool
}

// NewPgQueueRepository returns a QueueRepository over notification_queue.
func NewPgQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &pgQueueRepository{pool: pool}
}

func (r *pgQueueRepository) Enqueue(ctx context.Context, it *domain.QueueItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_queue
			(id, kind, service_name, priority, payload, attempts, max_attempts,
			 next_attempt_at, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		it.ID, it.Kind, it.ServiceName, it.Priority, []byte(it.Payload), it.Attempts, it.MaxAttempts,
		it.NextAttemptAt, it.Status, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (r *pgQueueRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]*domain.QueueItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, service_name, priority, payload, attempts, max_attempts,
		       next_attempt_at, status, last_error, created_at, updated_at
		FROM notification_queue
		WHERE (status = 'pending' AND next_attempt_at <= $1)
		   OR (status = 'processing' AND updated_at <= $3)
		ORDER BY priority DESC, created_at ASC
		LIMIT $2`, now, limit, now.Add(-domain.QueueProcessingLease))
	if err != nil {
		return nil, fmt.Errorf("fetch due queue items: %w", err)
	}
	defer rows.Close()

	var items []*domain.QueueItem
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *pgQueueRepository) MarkProcessing(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_queue SET status = 'processing', updated_at = $2
		WHERE id = $1`, id, at)
	return err
}

func (r *pgQueueRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'completed', last_error = NULL, processed_at = $1, updated_at = NOW()
		WHERE id = $2`, at, id)
	return err
}

func (r *pgQueueRepository) MarkAttemptFailed(ctx context.Context, id string, attempts int, next time.Time, status domain.QueueStatus, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET attempts = $1, next_attempt_at = $2, status = $3, last_error = $4, updated_at = NOW()
		WHERE id = $5`, attempts, next, status, errMsg, id)
	return err
}

func scanQueueItem(row pgx.Row) (*domain.QueueItem, error) {
	var (
		it      domain.QueueItem
		payload []byte
	)
	if err := row.Scan(&it.ID, &it.Kind, &it.ServiceName, &it.Priority, &payload, &it.Attempts,
		&it.MaxAttempts, &it.NextAttemptAt, &it.Status, &it.LastError, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.Payload = payload
	return &it, nil
}
