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

type pgQuoteRepository struct {
	pool *pgxpool.Pool
}

// NewPgQuoteRepository returns a QuoteRepository backed by PostgreSQL.
func NewPgQuoteRepository(pool *pgxpool.Pool) QuoteRepository {
	return &pgQuoteRepository{pool: pool}
}

const quoteColumns = `
	q.id, q.text, COALESCE(a.name, ''), COALESCE(c.name, ''),
	q.status, q.post_date, q.created_at, q.updated_at`

const quoteFrom = `
	FROM quotes q
	LEFT JOIN authors a ON a.id = q.author_id
	LEFT JOIN categories c ON c.id = q.category_id`

func (r *pgQuoteRepository) GetByID(ctx context.Context, id string) (*domain.Quote, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+quoteColumns+quoteFrom+` WHERE q.id = $1`, id)
	q, err := scanQuote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return q, nil
}

func (r *pgQuoteRepository) FindDueScheduled(ctx context.Context, cutoff time.Time) ([]*domain.Quote, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+quoteColumns+quoteFrom+`
		WHERE q.status = 'scheduled' AND q.post_date <= $1
		ORDER BY q.post_date ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find due scheduled quotes: %w", err)
	}
	defer rows.Close()

	var quotes []*domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func (r *pgQuoteRepository) LatestLive(ctx context.Context) (*domain.Quote, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+quoteColumns+quoteFrom+`
		WHERE q.status = 'live'
		ORDER BY q.post_date DESC, q.updated_at DESC
		LIMIT 1`)
	q, err := scanQuote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest live quote: %w", err)
	}
	return q, nil
}

func (r *pgQuoteRepository) PromoteToLive(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE quotes SET status = 'live', updated_at = NOW()
		WHERE id = ANY($1::uuid[]) AND status = 'scheduled'`, ids)
	if err != nil {
		return fmt.Errorf("promote quotes to live: %w", err)
	}
	return nil
}

func scanQuote(row pgx.Row) (*domain.Quote, error) {
	var q domain.Quote
	if err := row.Scan(&q.ID, &q.Text, &q.Author, &q.Category,
		&q.Status, &q.PostDate, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	return &q, nil
}
