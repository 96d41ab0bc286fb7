package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/metrics"
	"github.com/quotecast/notifier/internal/repository"
)

// Service owns the persisted circuit breaker rows. State transitions are the
// pure methods on domain.CircuitBreaker; this type loads, applies and saves
// them, and raises the admin alert when a breaker opens.
//
// The mutex serialises read-modify-write cycles within one process. Two
// processes may still interleave; the worst case is a lost failure increment,
// which only delays a trip by one failure.
type Service struct {
	mu     sync.Mutex
	store  repository.BreakerRepository
	admin  repository.AdminRepository
	hooks  metrics.Hooks
	logger *zap.Logger
}

func NewService(
	store repository.BreakerRepository,
	admin repository.AdminRepository,
	hooks metrics.Hooks,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:  store,
		admin:  admin,
		hooks:  hooks.WithDefaults(),
		logger: logger.With(zap.String("component", "breaker")),
	}
}

// Allow reports whether calls to service may proceed at now. A missing row is
// created closed. An open breaker whose cooldown elapsed moves to half-open.
func (s *Service) Allow(ctx context.Context, service string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, service)
	if err != nil {
		return false, err
	}
	if b.Refresh(now) {
		if err := s.store.Save(ctx, b); err != nil {
			return false, fmt.Errorf("save breaker %s: %w", service, err)
		}
		s.logger.Info("breaker half-open", zap.String("service", service))
	}
	if !b.Allows() {
		s.hooks.OnBreakerSkip(service)
		return false, nil
	}
	return true, nil
}

// RecordFailure counts one failed call against service.
func (s *Service) RecordFailure(ctx context.Context, service string, now time.Time, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, service)
	if err != nil {
		return err
	}
	b.Refresh(now)
	tripped := b.RecordFailure(now)
	if err := s.store.Save(ctx, b); err != nil {
		return fmt.Errorf("save breaker %s: %w", service, err)
	}
	if !tripped {
		return nil
	}

	s.hooks.OnBreakerTrip(service)
	s.logger.Error("breaker opened",
		zap.String("service", service),
		zap.Int("threshold", b.FailureThreshold),
		zap.String("cause", cause),
	)

	alert := &domain.AdminNotification{
		ID:       uuid.New().String(),
		Kind:     "circuit_breaker",
		Severity: domain.SeverityCritical,
		Title:    fmt.Sprintf("Circuit breaker opened for %s", service),
		Message: fmt.Sprintf("%d consecutive failures; sends to %s are paused for %s. Last error: %s",
			b.FailureThreshold, service, domain.BreakerCooldown, cause),
		CreatedAt: now,
	}
	// The breaker row is already saved; a failed alert must not undo the trip.
	if err := s.admin.CreateAdminNotification(ctx, alert); err != nil {
		s.logger.Error("create breaker alert", zap.String("service", service), zap.Error(err))
	}
	return nil
}

// RecordSuccess closes a half-open breaker and resets the failure count.
func (s *Service) RecordSuccess(ctx context.Context, service string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.load(ctx, service)
	if err != nil {
		return err
	}
	b.Refresh(now)
	wasHalfOpen := b.State == domain.BreakerHalfOpen
	if !b.RecordSuccess(now) {
		return nil
	}
	if err := s.store.Save(ctx, b); err != nil {
		return fmt.Errorf("save breaker %s: %w", service, err)
	}
	if wasHalfOpen {
		s.logger.Info("breaker closed", zap.String("service", service))
	}
	return nil
}

// State returns the current breaker row without mutating it.
func (s *Service) State(ctx context.Context, service string) (*domain.CircuitBreaker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, service)
}

func (s *Service) load(ctx context.Context, service string) (*domain.CircuitBreaker, error) {
	b, err := s.store.Get(ctx, service)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewCircuitBreaker(service), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load breaker %s: %w", service, err)
	}
	return b, nil
}
