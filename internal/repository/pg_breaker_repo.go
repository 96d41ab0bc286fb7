package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quotecast/notifier/internal/domain"
)

type pgBreakerRepository struct {
	pool *pgxpool.Pool
}

func NewPgBreakerRepository(pool *pgxpool.Pool) BreakerRepository {
	return &pgBreakerRepository{pool: pool}
}

func (r *pgBreakerRepository) Get(ctx context.Context, service string) (*domain.CircuitBreaker, error) {
	var b domain.CircuitBreaker
	err := r.pool.QueryRow(ctx, `
		SELECT service_name, state, failure_count, failure_threshold, last_failure_at, updated_at
		FROM circuit_breakers WHERE service_name = $1`, service).
		Scan(&b.ServiceName, &b.State, &b.FailureCount, &b.FailureThreshold, &b.LastFailureAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get circuit breaker: %w", err)
	}
	return &b, nil
}

func (r *pgBreakerRepository) Save(ctx context.Context, b *domain.CircuitBreaker) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO circuit_breakers
			(service_name, state, failure_count, failure_threshold, last_failure_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (service_name) DO UPDATE SET
			state             = EXCLUDED.state,
			failure_count     = EXCLUDED.failure_count,
			failure_threshold = EXCLUDED.failure_threshold,
			last_failure_at   = EXCLUDED.last_failure_at,
			updated_at        = NOW()`,
		b.ServiceName, b.State, b.FailureCount, b.FailureThreshold, b.LastFailureAt)
	if err != nil {
		return fmt.Errorf("save circuit breaker: %w", err)
	}
	return nil
}
