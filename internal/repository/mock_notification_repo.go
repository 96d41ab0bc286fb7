package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quotecast/notifier/internal/domain"
)

// MockNotificationRepository is a hand-written, in-memory implementation of
// NotificationRepository used in unit tests. No mock-generation library needed.
type MockNotificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification // keyed by subscriber|quote|channel

	// Optional error overrides, set in tests to simulate failure paths.
	SaveErr error
	FindErr error
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{notifications: make(map[string]*domain.Notification)}
}

func notificationKey(subscriberID, quoteID string, ch domain.Channel) string {
	return subscriberID + "|" + quoteID + "|" + string(ch)
}

func (m *MockNotificationRepository) Find(_ context.Context, subscriberID, quoteID string, ch domain.Channel) (*domain.Notification, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[notificationKey(subscriberID, quoteID, ch)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (m *MockNotificationRepository) Save(_ context.Context, n *domain.Notification) (bool, error) {
	if m.SaveErr != nil {
		return false, m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := notificationKey(n.SubscriberID, n.QuoteID, n.Channel)
	if existing, ok := m.notifications[key]; ok {
		if existing.Status == domain.StatusSent {
			return false, nil
		}
		// Upsert keeps the original identity, like the ON CONFLICT update.
		clone := *n
		clone.ID = existing.ID
		clone.CreatedAt = existing.CreatedAt
		m.notifications[key] = &clone
		return true, nil
	}
	clone := *n
	m.notifications[key] = &clone
	return true, nil
}

func (m *MockNotificationRepository) FindDueRetries(_ context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*domain.Notification
	for _, n := range m.notifications {
		if n.Status == domain.StatusFailed && n.RetryCount < domain.MaxRetries &&
			n.NextRetryAt != nil && !n.NextRetryAt.After(now) {
			clone := *n
			due = append(due, &clone)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(*due[j].NextRetryAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// All returns a snapshot of every stored notification.
func (m *MockNotificationRepository) All() []*domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		clone := *n
		out = append(out, &clone)
	}
	return out
}

// Put seeds a notification as-is, bypassing the sent guard.
func (m *MockNotificationRepository) Put(n *domain.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *n
	m.notifications[notificationKey(n.SubscriberID, n.QuoteID, n.Channel)] = &clone
}
