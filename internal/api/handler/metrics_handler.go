package handler

import (
	"context"
	"net/http"

	"github.com/quotecast/notifier/internal/domain"
)

// BreakerReader reads a service's persisted breaker row.
type BreakerReader interface {
	State(ctx context.Context, service string) (*domain.CircuitBreaker, error)
}

// MetricsHandler serves a human-readable JSON snapshot of the breakers.
// Raw Prometheus metrics (counters, histograms) are available at /metrics
// via promhttp.Handler and are separate from this endpoint.
type MetricsHandler struct {
	breakers BreakerReader
}

func NewMetricsHandler(breakers BreakerReader) *MetricsHandler {
	return &MetricsHandler{breakers: breakers}
}

// GetBreakers handles GET /api/v1/breakers
func (h *MetricsHandler) GetBreakers(w http.ResponseWriter, r *http.Request) {
	services := []domain.Channel{domain.ChannelEmail, domain.ChannelWhatsApp}
	out := make([]*domain.CircuitBreaker, 0, len(services))
	for _, ch := range services {
		b, err := h.breakers.State(r.Context(), ch.ServiceName())
		if err != nil {
			mapError(w, err)
			return
		}
		out = append(out, b)
	}
	respondJSON(w, http.StatusOK, map[string]any{"breakers": out})
}
