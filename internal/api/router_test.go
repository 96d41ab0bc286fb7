package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/api"
	"github.com/quotecast/notifier/internal/breaker"
	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/lock"
	"github.com/quotecast/notifier/internal/metrics"
	"github.com/quotecast/notifier/internal/provider"
	"github.com/quotecast/notifier/internal/repository"
	"github.com/quotecast/notifier/internal/service"
)

var now = time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC)

type stubRenderer struct{}

func (stubRenderer) Render(q *domain.Quote, s *domain.Subscriber) (*provider.EmailMessage, error) {
	return &provider.EmailMessage{To: s.Email, Subject: "Today's quote", Text: q.Text}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type server struct {
	handler http.Handler
	mocks   *repository.Mocks
	email   *provider.MockEmailSender
	locker  *lock.LocalLocker
}

func newServer(t *testing.T, withEmail bool, db pinger) *server {
	t.Helper()
	store, mocks := repository.NewMockStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	breakers := breaker.NewService(store.Breakers, store.Admin, m.Hooks(), zap.NewNop())

	s := &server{mocks: mocks, email: &provider.MockEmailSender{}, locker: lock.NewLocalLocker()}
	deps := service.Deps{
		Store:    store,
		Breakers: breakers,
		Renderer: stubRenderer{},
		Locker:   s.locker,
		Hooks:    m.Hooks(),
		Logger:   zap.NewNop(),
		Clock:    func() time.Time { return now },
	}
	if withEmail {
		deps.Email = s.email
	}
	svc := service.New(deps, service.Options{})
	s.handler = api.NewRouter(svc, reg, zap.NewNop(), api.Options{DB: db, Breakers: breakers})
	return s
}

func (s *server) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func subscriber(id string) *domain.Subscriber {
	return &domain.Subscriber{
		ID:              id,
		Email:           id + "@example.com",
		Status:          domain.SubscriberActive,
		EmailStatus:     domain.EmailVerified,
		NotifyNewQuotes: true,
	}
}

func TestRouter_Preflight(t *testing.T) {
	s := newServer(t, true, pinger{})

	req := httptest.NewRequest(http.MethodOptions, "/send-quote-notification", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestRouter_Health(t *testing.T) {
	rec := newServer(t, true, pinger{}).do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = newServer(t, true, pinger{err: errors.New("connection refused")}).do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestRouter_SendQuoteNotification(t *testing.T) {
	s := newServer(t, true, pinger{})
	s.mocks.Quotes.Put(&domain.Quote{ID: "q-live", Text: "Know thyself.", Status: domain.QuoteLive, PostDate: now})
	s.mocks.Quotes.Put(&domain.Quote{ID: "q-draft", Text: "Later.", Status: domain.QuoteDraft, PostDate: now})
	s.mocks.Subscribers.Put(subscriber("a"))
	s.mocks.Subscribers.Put(subscriber("b"))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "malformed body", body: `{"quote_id":`, status: http.StatusBadRequest},
		{name: "missing quote id", body: `{}`, status: http.StatusUnprocessableEntity},
		{name: "unknown quote", body: `{"quote_id":"nope"}`, status: http.StatusNotFound},
		{name: "quote not live", body: `{"quote_id":"q-draft"}`, status: http.StatusConflict},
		{name: "dispatched", body: `{"quote_id":"q-live"}`, status: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/send-quote-notification", tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			body := decode(t, rec)
			if tc.status == http.StatusOK {
				assert.Equal(t, float64(2), body["sent"])
				assert.Equal(t, float64(0), body["failed"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
	assert.Equal(t, 2, s.email.Calls())
}

func TestRouter_EmailNotConfigured(t *testing.T) {
	s := newServer(t, false, pinger{})
	s.mocks.Quotes.Put(&domain.Quote{ID: "q-live", Status: domain.QuoteLive, PostDate: now})
	s.mocks.Subscribers.Put(subscriber("a"))

	rec := s.do(http.MethodPost, "/send-quote-notification", `{"quote_id":"q-live"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, domain.ErrEmailNotConfigured.Error(), decode(t, rec)["error"])
	assert.Empty(t, s.mocks.Notifications.All())
}

func TestRouter_ProcessScheduledQuotes(t *testing.T) {
	s := newServer(t, true, pinger{})
	s.mocks.Quotes.Put(&domain.Quote{ID: "q-due", Text: "Now.", Status: domain.QuoteScheduled, PostDate: domain.DayStart(now)})
	s.mocks.Subscribers.Put(subscriber("a"))

	rec := s.do(http.MethodPost, "/process-scheduled-quotes", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Scheduled quotes published", body["message"])
	assert.Equal(t, float64(1), body["promoted"])
	assert.Equal(t, 1, s.email.Calls())
}

func TestRouter_JobAlreadyRunning(t *testing.T) {
	s := newServer(t, true, pinger{})
	release, ok, err := s.locker.Acquire(context.Background(), service.JobRetry, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	rec := s.do(http.MethodPost, "/retry-failed-notifications", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRouter_ProcessQueueEmpty(t *testing.T) {
	rec := newServer(t, true, pinger{}).do(http.MethodPost, "/process-notification-queue", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["processed"])
}

func TestRouter_VerifySubscription(t *testing.T) {
	s := newServer(t, true, pinger{})
	pending := subscriber("a")
	pending.Status = domain.SubscriberInactive
	pending.EmailStatus = domain.EmailPending
	s.mocks.Subscribers.Put(pending)
	s.mocks.Verifications.PutEmailVerification(&domain.EmailVerification{
		Token:        "tok-0123456789abcdef",
		SubscriberID: "a",
		ExpiresAt:    now.Add(time.Hour),
	})
	s.mocks.Verifications.PutEmailVerification(&domain.EmailVerification{
		Token:        "tok-expired-000000000",
		SubscriberID: "a",
		ExpiresAt:    now.Add(-time.Minute),
	})

	rec := s.do(http.MethodPost, "/verify-subscription", `{"token":"tok-0123456789abcdef"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "a", decode(t, rec)["subscriber_id"])

	rec = s.do(http.MethodPost, "/verify-subscription", `{"token":"tok-0123456789abcdef"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "token is single use")

	rec = s.do(http.MethodPost, "/verify-subscription", `{"token":"tok-expired-000000000"}`)
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = s.do(http.MethodPost, "/verify-subscription", `{"token":"short"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRouter_Breakers(t *testing.T) {
	rec := newServer(t, true, pinger{}).do(http.MethodGet, "/api/v1/breakers", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Breakers []domain.CircuitBreaker `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Breakers, 2)
	assert.Equal(t, domain.BreakerClosed, body.Breakers[0].State)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	rec := newServer(t, true, pinger{}).do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}
