package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/domain"
)

// Job is one invocation of a pipeline operation. The result is only logged.
type Job func(ctx context.Context) (any, error)

// JobWorker runs a Job on a fixed interval. It stands in for the external
// cron that calls the function endpoints: state lives in the database, so a
// restart loses nothing but the current tick.
type JobWorker struct {
	name     string
	job      Job
	interval time.Duration
	logger   *zap.Logger
	onJob    func(name string, err error)
}

// NewJobWorker constructs a worker. onJob is optional (nil = no-op).
func NewJobWorker(name string, job Job, interval time.Duration, logger *zap.Logger, onJob func(string, error)) *JobWorker {
	if onJob == nil {
		onJob = func(string, error) {}
	}
	return &JobWorker{
		name:     name,
		job:      job,
		interval: interval,
		logger:   logger.With(zap.String("job", name)),
		onJob:    onJob,
	}
}

// Run ticks every interval and invokes the job.
// Stops cleanly when ctx is cancelled; an in-flight invocation finishes first.
func (w *JobWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("job worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("job worker stopping")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *JobWorker) runOnce(ctx context.Context) {
	start := time.Now()
	result, err := w.job(ctx)
	w.onJob(w.name, err)

	switch {
	case errors.Is(err, domain.ErrJobRunning):
		// Another replica or a Lambda invocation holds the lock.
		w.logger.Debug("job already running elsewhere")
	case errors.Is(err, domain.ErrEmailNotConfigured):
		w.logger.Warn("job skipped", zap.Error(err))
	case err != nil && ctx.Err() == nil:
		w.logger.Error("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	case err == nil:
		w.logger.Debug("job finished", zap.Any("result", result), zap.Duration("elapsed", time.Since(start)))
	}
}
