package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/config"
	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/metrics"
	"github.com/quotecast/notifier/internal/service"
)

// Pipeline is the subset of the notification service the periodic jobs call.
type Pipeline interface {
	ProcessScheduledQuotes(ctx context.Context) (domain.ScheduledRun, error)
	ProcessQueue(ctx context.Context) (domain.QueueOutcome, error)
	RetryFailedNotifications(ctx context.Context) (domain.RetryRun, error)
}

// Jobs maps each periodic job name to its invocation. The Lambda runner and
// the in-process workers share it so both deployments run the same code.
func Jobs(p Pipeline) map[string]Job {
	return map[string]Job{
		service.JobScheduledQuotes: func(ctx context.Context) (any, error) { return p.ProcessScheduledQuotes(ctx) },
		service.JobQueue:           func(ctx context.Context) (any, error) { return p.ProcessQueue(ctx) },
		service.JobRetry:           func(ctx context.Context) (any, error) { return p.RetryFailedNotifications(ctx) },
	}
}

// Runner is anything the pool can supervise.
type Runner interface {
	Run(ctx context.Context)
}

// Pool manages the lifecycle of all background runners.
type Pool struct {
	runners []Runner
	wg      sync.WaitGroup
}

// NewPool creates one JobWorker per job with a non-zero interval.
func NewPool(cfg *config.Config, p Pipeline, logger *zap.Logger, hooks metrics.Hooks) *Pool {
	hooks = hooks.WithDefaults()
	jobs := Jobs(p)

	pool := &Pool{}
	for _, j := range []struct {
		name     string
		interval time.Duration
	}{
		{service.JobScheduledQuotes, cfg.ScheduledInterval},
		{service.JobQueue, cfg.QueueInterval},
		{service.JobRetry, cfg.RetryInterval},
	} {
		if j.interval <= 0 {
			logger.Info("job worker disabled", zap.String("job", j.name))
			continue
		}
		pool.Add(NewJobWorker(j.name, jobs[j.name], j.interval, logger, hooks.OnJob))
	}
	return pool
}

// Add registers an extra runner, such as the quote_live listener.
func (p *Pool) Add(r Runner) {
	p.runners = append(p.runners, r)
}

// Len reports how many runners are registered.
func (p *Pool) Len() int { return len(p.runners) }

// Start launches all runners as goroutines.
// The provided ctx is forwarded to every runner; cancelling it
// triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, r := range p.runners {
		p.wg.Add(1)
		go func(r Runner) {
			defer p.wg.Done()
			r.Run(ctx)
		}(r)
	}
}

// Wait blocks until every runner has returned after ctx is cancelled.
// Call this after cancelling the context to ensure in-flight jobs finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}
