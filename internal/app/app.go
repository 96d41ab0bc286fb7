// Package app assembles the pipeline from configuration. The HTTP server and
// the Lambda job runner share it so both deployments wire the same stack.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quotecast/notifier/internal/breaker"
	"github.com/quotecast/notifier/internal/config"
	"github.com/quotecast/notifier/internal/db"
	"github.com/quotecast/notifier/internal/lock"
	"github.com/quotecast/notifier/internal/metrics"
	"github.com/quotecast/notifier/internal/provider"
	"github.com/quotecast/notifier/internal/ratelimiter"
	"github.com/quotecast/notifier/internal/render"
	"github.com/quotecast/notifier/internal/repository"
	"github.com/quotecast/notifier/internal/service"
)

// App holds the long-lived resources of one process.
type App struct {
	Pool     *pgxpool.Pool
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Breakers *breaker.Service
	Service  *service.Service

	closers []func()
}

// NewLogger builds a production zap logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// Build connects to the database, applies migrations when enabled, and
// wires the providers, breakers, lock and metrics into a Service.
// Unconfigured providers are left nil; the operations that need them fail
// with a configuration error instead of the process.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Pool: pool, closers: []func(){pool.Close}}

	if cfg.RunMigrations {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	email, err := emailSender(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if email == nil {
		logger.Warn("email provider not configured", zap.String("provider", cfg.EmailProvider))
	}

	var whatsapp provider.WhatsAppSender
	if cfg.WhatsAppConfigured() {
		whatsapp = provider.NewWhatsAppCloudProvider(cfg.WhatsAppBaseURL, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppToken, cfg.ProviderTimeout)
	} else {
		logger.Info("whatsapp provider not configured")
	}

	renderer, err := render.NewQuoteEmail(cfg.SiteURL)
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker
	if cfg.RedisURL != "" {
		rl, err := lock.NewRedisLockerFromURL(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rl.Close() })
		locker = rl
	} else {
		logger.Warn("REDIS_URL not set, job locks are process-local")
		locker = lock.NewLocalLocker()
	}

	a.Registry = prometheus.NewRegistry()
	a.Metrics = metrics.New(a.Registry)
	hooks := a.Metrics.Hooks()

	store := repository.NewPgStore(pool)
	a.Breakers = breaker.NewService(store.Breakers, store.Admin, hooks, logger.With(zap.String("component", "breaker")))
	a.Service = service.New(service.Deps{
		Store:    store,
		Breakers: a.Breakers,
		Email:    email,
		WhatsApp: whatsapp,
		Renderer: renderer,
		Limiter:  ratelimiter.New(cfg.EmailRateLimit, cfg.WhatsAppRateLimit),
		Locker:   locker,
		Hooks:    hooks,
		Logger:   logger.With(zap.String("component", "pipeline")),
	}, service.Options{
		BatchSize:        cfg.BatchSize,
		RetryBatchSize:   cfg.RetryBatchSize,
		LockTTL:          cfg.LockTTL,
		QuoteTemplate:    cfg.WhatsAppQuoteTemplate,
		VerifyTemplate:   cfg.WhatsAppVerifyTemplate,
		TemplateLanguage: cfg.WhatsAppTemplateLanguage,
	})
	return a, nil
}

// emailSender returns a nil interface, not a typed nil, when no provider is
// configured.
func emailSender(ctx context.Context, cfg *config.Config) (provider.EmailSender, error) {
	if !cfg.EmailConfigured() {
		return nil, nil
	}
	if cfg.EmailProvider == "ses" {
		p, err := provider.NewSESProvider(ctx, cfg.AWSRegion, cfg.EmailFrom)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return provider.NewResendProvider(cfg.ResendBaseURL, cfg.ResendAPIKey, cfg.EmailFrom, cfg.ProviderTimeout), nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
