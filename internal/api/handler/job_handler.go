package handler

import (
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/quotecast/notifier/internal/api/middleware"
	"github.com/quotecast/notifier/internal/service"
)

// JobHandler exposes the periodic pipeline jobs for an external scheduler.
type JobHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

func NewJobHandler(svc *service.Service, logger *zap.Logger) *JobHandler {
	return &JobHandler{svc: svc, logger: logger}
}

// ProcessScheduledQuotes handles POST /process-scheduled-quotes
func (h *JobHandler) ProcessScheduledQuotes(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.ProcessScheduledQuotes(r.Context())
	if err != nil {
		h.fail(r, service.JobScheduledQuotes, err)
		mapError(w, err)
		return
	}
	message := "No scheduled quotes due"
	if run.Promoted > 0 {
		message = "Scheduled quotes published"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":  message,
		"promoted": run.Promoted,
		"results":  run.Results,
		"totals":   run.Totals,
	})
}

// ProcessQueue handles POST /process-notification-queue
func (h *JobHandler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ProcessQueue(r.Context())
	if err != nil {
		h.fail(r, service.JobQueue, err)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":   "Queue processed",
		"processed": out.Fetched,
		"outcome":   out,
	})
}

// RetryFailed handles POST /retry-failed-notifications
func (h *JobHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.RetryFailedNotifications(r.Context())
	if err != nil {
		h.fail(r, service.JobRetry, err)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Retry sweep finished",
		"retried": run.Due,
		"run":     run,
	})
}

func (h *JobHandler) fail(r *http.Request, job string, err error) {
	h.logger.Warn("job request failed",
		zap.String("job", job),
		zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
		zap.Error(err),
	)
}
