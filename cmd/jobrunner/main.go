// Command jobrunner runs one pipeline job per AWS Lambda invocation. An
// EventBridge schedule per job replaces the in-process tickers of the server.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/app"
	"github.com/quotecast/notifier/internal/config"
	"github.com/quotecast/notifier/internal/metrics"
	"github.com/quotecast/notifier/internal/worker"
)

// Event is the scheduled payload, e.g. {"job":"retry-failed-notifications"}.
type Event struct {
	Job string `json:"job"`
}

// Response is returned to the invoker and logged by Lambda.
type Response struct {
	Job      string `json:"job"`
	Result   any    `json:"result,omitempty"`
	Duration string `json:"duration"`
}

type runner struct {
	jobs   map[string]worker.Job
	hooks  metrics.Hooks
	logger *zap.Logger
}

func (r *runner) handle(ctx context.Context, ev Event) (Response, error) {
	job, ok := r.jobs[ev.Job]
	if !ok {
		return Response{}, fmt.Errorf("unknown job %q", ev.Job)
	}
	start := time.Now()
	result, err := job(ctx)
	r.hooks.OnJob(ev.Job, err)
	if err != nil {
		r.logger.Error("job failed", zap.String("job", ev.Job), zap.Error(err))
		return Response{}, err
	}
	r.logger.Info("job finished", zap.String("job", ev.Job), zap.Duration("took", time.Since(start)))
	return Response{Job: ev.Job, Result: result, Duration: time.Since(start).String()}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	// Built once per container and reused across warm invocations.
	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise pipeline", zap.Error(err))
	}
	defer a.Close()

	r := &runner{
		jobs:   worker.Jobs(a.Service),
		hooks:  a.Metrics.Hooks(),
		logger: logger.With(zap.String("component", "jobrunner")),
	}
	lambda.StartWithOptions(r.handle, lambda.WithEnableSIGTERM(a.Close))
}
