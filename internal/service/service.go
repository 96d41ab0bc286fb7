package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/breaker"
	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/lock"
	"github.com/quotecast/notifier/internal/metrics"
	"github.com/quotecast/notifier/internal/provider"
	"github.com/quotecast/notifier/internal/ratelimiter"
	"github.com/quotecast/notifier/internal/repository"
)

// Job names double as lock names and metric labels.
const (
	JobScheduledQuotes = "process-scheduled-quotes"
	JobQueue           = "process-notification-queue"
	JobRetry           = "retry-failed-notifications"
)

// EmailRenderer turns a quote into a message for one subscriber.
type EmailRenderer interface {
	Render(q *domain.Quote, s *domain.Subscriber) (*provider.EmailMessage, error)
}

// Options tunes the pipeline. Zero values fall back to the defaults below.
type Options struct {
	BatchSize        int
	RetryBatchSize   int
	LockTTL          time.Duration
	QuoteTemplate    string
	VerifyTemplate   string
	TemplateLanguage string
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.RetryBatchSize <= 0 {
		o.RetryBatchSize = 200
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 10 * time.Minute
	}
	if o.QuoteTemplate == "" {
		o.QuoteTemplate = "daily_quote"
	}
	if o.VerifyTemplate == "" {
		o.VerifyTemplate = "verification_code"
	}
	if o.TemplateLanguage == "" {
		o.TemplateLanguage = "en_US"
	}
	return o
}

// Deps are the collaborators of Service. Email and WhatsApp may be nil when
// the provider is not configured; operations that need them fail with
// ErrEmailNotConfigured / ErrWhatsAppNotConfigured before any side effect.
type Deps struct {
	Store    *repository.Store
	Breakers *breaker.Service
	Email    provider.EmailSender
	WhatsApp provider.WhatsAppSender
	Renderer EmailRenderer
	Limiter  *ratelimiter.ChannelLimiters
	Locker   lock.Locker
	Hooks    metrics.Hooks
	Logger   *zap.Logger
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

// Service is the notification pipeline. HTTP handlers, background workers
// and the Lambda runner all call into it; none of them talk to each other.
type Service struct {
	store    *repository.Store
	breakers *breaker.Service
	email    provider.EmailSender
	whatsapp provider.WhatsAppSender
	renderer EmailRenderer
	limiter  *ratelimiter.ChannelLimiters
	locker   lock.Locker
	hooks    metrics.Hooks
	validate *validator.Validate
	logger   *zap.Logger
	clock    func() time.Time
	opts     Options
}

func New(d Deps, opts Options) *Service {
	s := &Service{
		store:    d.Store,
		breakers: d.Breakers,
		email:    d.Email,
		whatsapp: d.WhatsApp,
		renderer: d.Renderer,
		limiter:  d.Limiter,
		locker:   d.Locker,
		hooks:    d.Hooks.WithDefaults(),
		validate: validator.New(),
		logger:   d.Logger,
		clock:    d.Clock,
		opts:     opts.withDefaults(),
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	if s.limiter == nil {
		s.limiter = ratelimiter.Unlimited()
	}
	if s.locker == nil {
		s.locker = lock.NewLocalLocker()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Service) now() time.Time { return s.clock() }

// withLock runs fn while holding the named lock. A lock held elsewhere is
// reported as ErrJobRunning.
func (s *Service) withLock(ctx context.Context, name string, fn func() error) error {
	release, ok, err := s.locker.Acquire(ctx, name, s.opts.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire %s lock: %w", name, err)
	}
	if !ok {
		return domain.ErrJobRunning
	}
	defer release()
	return fn()
}

// recordBreaker feeds one send outcome into the service breaker. Invalid
// recipients say nothing about provider health and are not counted.
func (s *Service) recordBreaker(ctx context.Context, service string, err error, f domain.Failure) {
	now := s.now()
	var berr error
	switch {
	case err == nil:
		berr = s.breakers.RecordSuccess(ctx, service, now)
	case f.Kind == domain.FailureInvalidEmail:
		return
	default:
		berr = s.breakers.RecordFailure(ctx, service, now, f.Message)
	}
	if berr != nil {
		s.logger.Error("record breaker outcome", zap.String("service", service), zap.Error(berr))
	}
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
