package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quotecast/notifier/internal/breaker"
	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/lock"
	"github.com/quotecast/notifier/internal/metrics"
	"github.com/quotecast/notifier/internal/provider"
	"github.com/quotecast/notifier/internal/repository"
	"github.com/quotecast/notifier/internal/service"
)

var t0 = time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *service.Service
	store    *repository.Store
	mocks    *repository.Mocks
	email    *provider.MockEmailSender
	whatsapp *provider.MockWhatsAppSender
	breakers *breaker.Service
	locker   *lock.LocalLocker
	now      time.Time
}

type stubRenderer struct{}

func (stubRenderer) Render(q *domain.Quote, s *domain.Subscriber) (*provider.EmailMessage, error) {
	return &provider.EmailMessage{
		To:      s.Email,
		Subject: "Today's quote",
		Text:    q.Text,
		Tags:    map[string]string{"quote_id": q.ID},
	}, nil
}

type fixtureOption func(*service.Deps, *service.Options)

func withoutEmail() fixtureOption {
	return func(d *service.Deps, _ *service.Options) { d.Email = nil }
}

func withoutWhatsApp() fixtureOption {
	return func(d *service.Deps, _ *service.Options) { d.WhatsApp = nil }
}

func withRenderer(r service.EmailRenderer) fixtureOption {
	return func(d *service.Deps, _ *service.Options) { d.Renderer = r }
}

func withBatchSize(n int) fixtureOption {
	return func(_ *service.Deps, o *service.Options) { o.BatchSize = n }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store, mocks := repository.NewMockStore()
	f := &fixture{
		store:    store,
		mocks:    mocks,
		email:    &provider.MockEmailSender{},
		whatsapp: &provider.MockWhatsAppSender{},
		locker:   lock.NewLocalLocker(),
		now:      t0,
	}
	f.breakers = breaker.NewService(store.Breakers, store.Admin, metrics.Hooks{}, zap.NewNop())

	deps := service.Deps{
		Store:    store,
		Breakers: f.breakers,
		Email:    f.email,
		WhatsApp: f.whatsapp,
		Renderer: stubRenderer{},
		Locker:   f.locker,
		Logger:   zap.NewNop(),
		Clock:    func() time.Time { return f.now },
	}
	options := service.Options{QuoteTemplate: "daily_quote", VerifyTemplate: "verification_code"}
	for _, o := range opts {
		o(&deps, &options)
	}
	f.svc = service.New(deps, options)
	return f
}

func activeSubscriber(id string) *domain.Subscriber {
	return &domain.Subscriber{
		ID:              id,
		Email:           id + "@example.com",
		Name:            "Reader " + id,
		Status:          domain.SubscriberActive,
		EmailStatus:     domain.EmailVerified,
		NotifyNewQuotes: true,
		CreatedAt:       t0.Add(-24 * time.Hour),
	}
}

func whatsAppSubscriber(id, phone string) *domain.Subscriber {
	s := activeSubscriber(id)
	s.NotifyWhatsApp = true
	s.WhatsAppVerified = true
	s.PhoneNumber = &phone
	return s
}

func liveQuote(id string) *domain.Quote {
	return &domain.Quote{
		ID:       id,
		Text:     "The obstacle is the way.",
		Author:   "Marcus Aurelius",
		Category: "Stoicism",
		Status:   domain.QuoteLive,
		PostDate: domain.DayStart(t0),
	}
}

// seedSubscribers stores n active subscribers named sub-001, sub-002, ...
func (f *fixture) seedSubscribers(n int) {
	for i := 1; i <= n; i++ {
		f.mocks.Subscribers.Put(activeSubscriber(fmt.Sprintf("sub-%03d", i)))
	}
}

func (f *fixture) notification(subscriberID, quoteID string, ch domain.Channel) *domain.Notification {
	for _, n := range f.mocks.Notifications.All() {
		if n.SubscriberID == subscriberID && n.QuoteID == quoteID && n.Channel == ch {
			return n
		}
	}
	return nil
}

func (f *fixture) openBreaker(service string) {
	at := f.now
	_ = f.mocks.Breakers.Save(context.Background(), &domain.CircuitBreaker{
		ServiceName:      service,
		State:            domain.BreakerOpen,
		FailureThreshold: domain.DefaultFailureThreshold,
		LastFailureAt:    &at,
	})
}
