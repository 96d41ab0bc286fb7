package repository

import "github.com/jackc/pgx/v5/pgxpool"

// NewPgStore returns a Store whose repositories share one PostgreSQL pool.
func NewPgStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Quotes:        NewPgQuoteRepository(pool),
		Subscribers:   NewPgSubscriberRepository(pool),
		Notifications: NewPgNotificationRepository(pool),
		Breakers:      NewPgBreakerRepository(pool),
		Queue:         NewPgQueueRepository(pool),
		Admin:         NewPgAdminRepository(pool),
		Metrics:       NewPgMetricsRepository(pool),
		Verifications: NewPgVerificationRepository(pool),
	}
}
