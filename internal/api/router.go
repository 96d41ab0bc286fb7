package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/api/handler"
	apimw "github.com/quotecast/notifier/internal/api/middleware"
	"github.com/quotecast/notifier/internal/service"
)

// Options carries the router's optional collaborators.
type Options struct {
	AllowedOrigins []string
	DB             handler.Pinger
	Breakers       handler.BreakerReader
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.Service,
	reg prometheus.Gatherer,
	logger *zap.Logger,
	opts Options,
) http.Handler {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Client-Info", "Apikey", "X-Correlation-ID"},
		ExposedHeaders: []string{"X-Correlation-ID"},
		MaxAge:         300,
	}))
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	jh := handler.NewJobHandler(svc, logger)
	nh := handler.NewNotificationHandler(svc, logger)
	mh := handler.NewMessagingHandler(svc, logger)
	hh := handler.NewHealthHandler(opts.DB)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Function endpoints, invoked by the scheduler or application code.
	r.Post("/process-scheduled-quotes", jh.ProcessScheduledQuotes)
	r.Post("/process-notification-queue", jh.ProcessQueue)
	r.Post("/retry-failed-notifications", jh.RetryFailed)
	r.Post("/send-quote-notification", nh.SendQuoteNotification)
	r.Post("/enqueue-notification", nh.Enqueue)
	r.Post("/send-whatsapp-message", mh.SendWhatsApp)
	r.Post("/verify-whatsapp", mh.VerifyWhatsApp)
	r.Post("/verify-whatsapp/confirm", mh.ConfirmWhatsApp)
	r.Post("/verify-subscription", mh.VerifySubscription)

	if opts.Breakers != nil {
		bh := handler.NewMetricsHandler(opts.Breakers)
		r.Get("/api/v1/breakers", bh.GetBreakers)
	}

	return r
}
