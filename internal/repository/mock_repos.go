package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quotecast/notifier/internal/domain"
)

// NewMockStore wires a Store from the in-memory repositories below.
func NewMockStore() (*Store, *Mocks) {
	m := &Mocks{
		Quotes:        NewMockQuoteRepository(),
		Subscribers:   NewMockSubscriberRepository(),
		Notifications: NewMockNotificationRepository(),
		Breakers:      NewMockBreakerRepository(),
		Queue:         NewMockQueueRepository(),
		Admin:         &MockAdminRepository{},
		Metrics:       NewMockMetricsRepository(),
		Verifications: NewMockVerificationRepository(),
	}
	return &Store{
		Quotes:        m.Quotes,
		Subscribers:   m.Subscribers,
		Notifications: m.Notifications,
		Breakers:      m.Breakers,
		Queue:         m.Queue,
		Admin:         m.Admin,
		Metrics:       m.Metrics,
		Verifications: m.Verifications,
	}, m
}

// Mocks exposes the concrete mocks behind a mock Store for seeding and assertions.
type Mocks struct {
	Quotes        *MockQuoteRepository
	Subscribers   *MockSubscriberRepository
	Notifications *MockNotificationRepository
	Breakers      *MockBreakerRepository
	Queue         *MockQueueRepository
	Admin         *MockAdminRepository
	Metrics       *MockMetricsRepository
	Verifications *MockVerificationRepository
}

// ---- quotes ----

type MockQuoteRepository struct {
	mu     sync.RWMutex
	quotes map[string]*domain.Quote

	PromoteErr error
}

func NewMockQuoteRepository() *MockQuoteRepository {
	return &MockQuoteRepository{quotes: make(map[string]*domain.Quote)}
}

func (m *MockQuoteRepository) Put(q *domain.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *q
	m.quotes[q.ID] = &clone
}

func (m *MockQuoteRepository) GetByID(_ context.Context, id string) (*domain.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *q
	return &clone, nil
}

func (m *MockQuoteRepository) FindDueScheduled(_ context.Context, cutoff time.Time) ([]*domain.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*domain.Quote
	for _, q := range m.quotes {
		if q.Status == domain.QuoteScheduled && !q.PostDate.After(cutoff) {
			clone := *q
			due = append(due, &clone)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].PostDate.Before(due[j].PostDate) })
	return due, nil
}

func (m *MockQuoteRepository) LatestLive(_ context.Context) (*domain.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.Quote
	for _, q := range m.quotes {
		if q.Status == domain.QuoteLive && (latest == nil || q.PostDate.After(latest.PostDate)) {
			latest = q
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (m *MockQuoteRepository) PromoteToLive(_ context.Context, ids []string) error {
	if m.PromoteErr != nil {
		return m.PromoteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if q, ok := m.quotes[id]; ok && q.Status == domain.QuoteScheduled {
			q.Status = domain.QuoteLive
		}
	}
	return nil
}

// ---- subscribers ----

type MockSubscriberRepository struct {
	mu          sync.RWMutex
	subscribers map[string]*domain.Subscriber
	order       []string

	ListErr error
}

func NewMockSubscriberRepository() *MockSubscriberRepository {
	return &MockSubscriberRepository{subscribers: make(map[string]*domain.Subscriber)}
}

func (m *MockSubscriberRepository) Put(s *domain.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribers[s.ID]; !ok {
		m.order = append(m.order, s.ID)
	}
	clone := *s
	m.subscribers[s.ID] = &clone
}

func (m *MockSubscriberRepository) GetByID(_ context.Context, id string) (*domain.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscribers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *MockSubscriberRepository) ListNotifiable(_ context.Context) ([]*domain.Subscriber, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Subscriber{}
	for _, id := range m.order {
		s := m.subscribers[id]
		if s.WantsNewQuoteEmail() {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *MockSubscriberRepository) ListWhatsAppNotifiable(_ context.Context) ([]*domain.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Subscriber{}
	for _, id := range m.order {
		s := m.subscribers[id]
		if s.WantsWhatsApp() {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *MockSubscriberRepository) MarkEmailVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.EmailStatus = domain.EmailVerified
	s.Status = domain.SubscriberActive
	return nil
}

func (m *MockSubscriberRepository) MarkWhatsAppVerified(_ context.Context, id, phoneNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.WhatsAppVerified = true
	s.PhoneNumber = &phoneNumber
	return nil
}

// ---- circuit breakers ----

type MockBreakerRepository struct {
	mu       sync.RWMutex
	breakers map[string]*domain.CircuitBreaker

	SaveErr error
}

func NewMockBreakerRepository() *MockBreakerRepository {
	return &MockBreakerRepository{breakers: make(map[string]*domain.CircuitBreaker)}
}

func (m *MockBreakerRepository) Get(_ context.Context, service string) (*domain.CircuitBreaker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[service]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *b
	return &clone, nil
}

func (m *MockBreakerRepository) Save(_ context.Context, b *domain.CircuitBreaker) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *b
	m.breakers[b.ServiceName] = &clone
	return nil
}

// ---- queue ----

type MockQueueRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.QueueItem
}

func NewMockQueueRepository() *MockQueueRepository {
	return &MockQueueRepository{items: make(map[string]*domain.QueueItem)}
}

func (m *MockQueueRepository) Enqueue(_ context.Context, it *domain.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *it
	m.items[it.ID] = &clone
	return nil
}

func (m *MockQueueRepository) FetchDue(_ context.Context, now time.Time, limit int) ([]*domain.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*domain.QueueItem
	for _, it := range m.items {
		pending := it.Status == domain.QueuePending && !it.NextAttemptAt.After(now)
		stale := it.Status == domain.QueueProcessing && !it.UpdatedAt.After(now.Add(-domain.QueueProcessingLease))
		if pending || stale {
			clone := *it
			due = append(due, &clone)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MockQueueRepository) MarkProcessing(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		it.Status = domain.QueueProcessing
		it.UpdatedAt = at
	}
	return nil
}

func (m *MockQueueRepository) MarkCompleted(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		it.Status = domain.QueueCompleted
		it.LastError = nil
		it.UpdatedAt = at
	}
	return nil
}

func (m *MockQueueRepository) MarkAttemptFailed(_ context.Context, id string, attempts int, next time.Time, status domain.QueueStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		it.Attempts = attempts
		it.NextAttemptAt = next
		it.Status = status
		it.LastError = &errMsg
	}
	return nil
}

// Get returns a snapshot of one queue item.
func (m *MockQueueRepository) Get(id string) (*domain.QueueItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, false
	}
	clone := *it
	return &clone, true
}

// ---- admin notifications ----

type MockAdminRepository struct {
	mu     sync.Mutex
	alerts []*domain.AdminNotification
}

func (m *MockAdminRepository) CreateAdminNotification(_ context.Context, n *domain.AdminNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *n
	m.alerts = append(m.alerts, &clone)
	return nil
}

func (m *MockAdminRepository) Alerts() []*domain.AdminNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AdminNotification(nil), m.alerts...)
}

// ---- daily metrics ----

type MockMetricsRepository struct {
	mu     sync.Mutex
	values map[string]int
}

func NewMockMetricsRepository() *MockMetricsRepository {
	return &MockMetricsRepository{values: make(map[string]int)}
}

func (m *MockMetricsRepository) IncrementDaily(_ context.Context, day time.Time, name string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[domain.DayStart(day).Format("2006-01-02")+"/"+name] += delta
	return nil
}

// Value returns the stored value for (day, name).
func (m *MockMetricsRepository) Value(day time.Time, name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[domain.DayStart(day).Format("2006-01-02")+"/"+name]
}

// ---- verifications ----

type MockVerificationRepository struct {
	mu       sync.Mutex
	email    map[string]*domain.EmailVerification
	whatsapp map[string]*domain.WhatsAppVerification
}

func NewMockVerificationRepository() *MockVerificationRepository {
	return &MockVerificationRepository{
		email:    make(map[string]*domain.EmailVerification),
		whatsapp: make(map[string]*domain.WhatsAppVerification),
	}
}

func (m *MockVerificationRepository) PutEmailVerification(v *domain.EmailVerification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *v
	m.email[v.Token] = &clone
}

func (m *MockVerificationRepository) GetEmailVerification(_ context.Context, token string) (*domain.EmailVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.email[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *v
	return &clone, nil
}

func (m *MockVerificationRepository) MarkEmailVerificationUsed(_ context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.email[token]
	if !ok || v.VerifiedAt != nil {
		return domain.ErrInvalidToken
	}
	v.VerifiedAt = &at
	return nil
}

func (m *MockVerificationRepository) SaveWhatsAppCode(_ context.Context, v *domain.WhatsAppVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *v
	clone.Attempts = 0
	clone.VerifiedAt = nil
	m.whatsapp[v.SubscriberID] = &clone
	return nil
}

func (m *MockVerificationRepository) GetWhatsAppCode(_ context.Context, subscriberID string) (*domain.WhatsAppVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.whatsapp[subscriberID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *v
	return &clone, nil
}

func (m *MockVerificationRepository) IncrementWhatsAppAttempts(_ context.Context, subscriberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.whatsapp[subscriberID]; ok {
		v.Attempts++
	}
	return nil
}

func (m *MockVerificationRepository) MarkWhatsAppCodeUsed(_ context.Context, subscriberID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.whatsapp[subscriberID]; ok {
		v.VerifiedAt = &at
	}
	return nil
}
