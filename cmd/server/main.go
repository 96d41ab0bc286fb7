package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/api"
	"github.com/quotecast/notifier/internal/app"
	"github.com/quotecast/notifier/internal/config"
	"github.com/quotecast/notifier/internal/trigger"
	"github.com/quotecast/notifier/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	// ---- database, providers, pipeline ----
	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise pipeline", zap.Error(err))
	}
	defer a.Close()

	// ---- background workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	pool := worker.NewPool(cfg, a.Service, logger.With(zap.String("component", "worker")), a.Metrics.Hooks())
	if cfg.ListenQuoteLive {
		pool.Add(trigger.NewListener(a.Pool, a.Service, logger.With(zap.String("component", "listener"))))
	}
	pool.Start(workerCtx)
	logger.Info("background runners started", zap.Int("count", pool.Len()))

	// ---- HTTP server ----
	router := api.NewRouter(a.Service, a.Registry, logger, api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		DB:             a.Pool,
		Breakers:       a.Breakers,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the pollers and the listener.
	cancelWorkers()

	// 3. Wait for an in-flight sweep to finish its current batch.
	pool.Wait()

	logger.Info("server stopped cleanly")
}
