package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/provider"
)

func emailItem(t *testing.T, id, subscriberID string, priority int, created time.Time) *domain.QueueItem {
	t.Helper()
	payload, err := json.Marshal(domain.QuoteEmailPayload{QuoteID: "q1", SubscriberID: subscriberID})
	require.NoError(t, err)
	return &domain.QueueItem{
		ID:            id,
		Kind:          domain.QueueQuoteEmail,
		ServiceName:   "email",
		Priority:      priority,
		Payload:       payload,
		MaxAttempts:   domain.DefaultQueueMaxAttempts,
		NextAttemptAt: created,
		Status:        domain.QueuePending,
		CreatedAt:     created,
	}
}

func TestProcessQueue_PriorityThenAge(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	f.seedSubscribers(3)
	ctx := context.Background()

	require.NoError(t, f.mocks.Queue.Enqueue(ctx, emailItem(t, "a", "sub-001", 1, t0.Add(-1*time.Minute))))
	require.NoError(t, f.mocks.Queue.Enqueue(ctx, emailItem(t, "b", "sub-002", 5, t0)))
	require.NoError(t, f.mocks.Queue.Enqueue(ctx, emailItem(t, "c", "sub-003", 1, t0.Add(-2*time.Minute))))

	out, err := f.svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueOutcome{Fetched: 3, Completed: 3}, out)

	var order []string
	for _, m := range f.email.Messages() {
		order = append(order, m.To)
	}
	assert.Equal(t, []string{"sub-002@example.com", "sub-003@example.com", "sub-001@example.com"}, order)

	it, ok := f.mocks.Queue.Get("a")
	require.True(t, ok)
	assert.Equal(t, domain.QueueCompleted, it.Status)
	assert.Equal(t, 3, f.mocks.Metrics.Value(t0, domain.MetricQueueProcessed))
	assert.Equal(t, domain.StatusSent, f.notification("sub-002", "q1", domain.ChannelEmail).Status)
}

func TestProcessQueue_TakesTenPerPass(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	f.seedSubscribers(12)
	ctx := context.Background()
	for i := 1; i <= 12; i++ {
		id := fmt.Sprintf("item-%02d", i)
		require.NoError(t, f.mocks.Queue.Enqueue(ctx, emailItem(t, id, fmt.Sprintf("sub-%03d", i), 0, t0.Add(time.Duration(i)*time.Second-time.Hour))))
	}

	out, err := f.svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, out.Fetched)
	assert.Equal(t, 10, out.Completed)

	last, _ := f.mocks.Queue.Get("item-12")
	assert.Equal(t, domain.QueuePending, last.Status)
}

func TestProcessQueue_FailureBackoff(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	f.seedSubscribers(2)
	ctx := context.Background()

	fresh := emailItem(t, "fresh", "sub-001", 0, t0)
	lastTry := emailItem(t, "last", "sub-002", 0, t0)
	lastTry.Attempts = 2
	require.NoError(t, f.mocks.Queue.Enqueue(ctx, fresh))
	require.NoError(t, f.mocks.Queue.Enqueue(ctx, lastTry))

	f.email.SendFunc = func(*provider.EmailMessage) (*provider.SendResponse, error) {
		return nil, errors.New("connection refused")
	}

	out, err := f.svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Retrying)
	assert.Equal(t, 1, out.Failed)

	it, _ := f.mocks.Queue.Get("fresh")
	assert.Equal(t, domain.QueuePending, it.Status)
	assert.Equal(t, 1, it.Attempts)
	assert.Equal(t, t0.Add(2*time.Minute), it.NextAttemptAt)
	require.NotNil(t, it.LastError)
	assert.Contains(t, *it.LastError, "connection refused")

	it, _ = f.mocks.Queue.Get("last")
	assert.Equal(t, domain.QueueFailed, it.Status)
	assert.Equal(t, 3, it.Attempts)

	// Queue-owned failures are not handed to the retry sweep as well.
	n := f.notification("sub-001", "q1", domain.ChannelEmail)
	require.NotNil(t, n)
	assert.Nil(t, n.NextRetryAt)
}

func TestProcessQueue_FailureKeepsScheduledRetry(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	f.seedSubscribers(1)
	ctx := context.Background()

	scheduled := t0.Add(15 * time.Minute)
	kind := string(domain.FailureNetwork)
	f.mocks.Notifications.Put(&domain.Notification{
		ID:           "n-1",
		SubscriberID: "sub-001",
		QuoteID:      "q1",
		Channel:      domain.ChannelEmail,
		Recipient:    "sub-001@example.com",
		Status:       domain.StatusFailed,
		RetryCount:   1,
		NextRetryAt:  &scheduled,
		ErrorKind:    &kind,
		CreatedAt:    t0.Add(-time.Hour),
	})
	require.NoError(t, f.mocks.Queue.Enqueue(ctx, emailItem(t, "a", "sub-001", 0, t0)))
	f.email.SendFunc = func(*provider.EmailMessage) (*provider.SendResponse, error) {
		return nil, errors.New("connection refused")
	}

	out, err := f.svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Retrying)

	n := f.notification("sub-001", "q1", domain.ChannelEmail)
	require.NotNil(t, n)
	assert.Equal(t, "n-1", n.ID)
	assert.Equal(t, 1, n.RetryCount)
	require.NotNil(t, n.NextRetryAt, "the retry sweep keeps its slot")
	assert.Equal(t, scheduled, *n.NextRetryAt)
}

func TestProcessQueue_ReclaimsStaleProcessingItems(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	f.seedSubscribers(1)
	ctx := context.Background()

	require.NoError(t, f.mocks.Queue.Enqueue(ctx, emailItem(t, "a", "sub-001", 0, t0)))
	// A run that died after claiming the item.
	require.NoError(t, f.mocks.Queue.MarkProcessing(ctx, "a", t0))

	out, err := f.svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Zero(t, out.Fetched, "lease still held")

	f.now = t0.Add(domain.QueueProcessingLease + time.Minute)
	out, err = f.svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueOutcome{Fetched: 1, Completed: 1}, out)

	it, _ := f.mocks.Queue.Get("a")
	assert.Equal(t, domain.QueueCompleted, it.Status)
	assert.Equal(t, 1, f.email.Calls())
}

func TestProcessQueue_OpenBreakerLeavesItemsPending(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	f.seedSubscribers(1)
	ctx := context.Background()
	require.NoError(t, f.mocks.Queue.Enqueue(ctx, emailItem(t, "a", "sub-001", 0, t0)))
	f.openBreaker("email")

	out, err := f.svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Skipped)
	assert.Zero(t, f.email.Calls())

	it, _ := f.mocks.Queue.Get("a")
	assert.Equal(t, domain.QueuePending, it.Status)
	assert.Equal(t, 0, it.Attempts)
}

func TestProcessQueue_MalformedPayloadFailsImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := emailItem(t, "bad", "sub-001", 0, t0)
	bad.Payload = json.RawMessage(`{"quote_id":"q1"}`)
	require.NoError(t, f.mocks.Queue.Enqueue(ctx, bad))

	out, err := f.svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Failed)

	it, _ := f.mocks.Queue.Get("bad")
	assert.Equal(t, domain.QueueFailed, it.Status)
	assert.Equal(t, 1, it.Attempts)

	b, _ := f.breakers.State(ctx, "email")
	assert.Equal(t, 0, b.FailureCount)
}

func TestProcessQueue_WhatsAppItem(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	f.mocks.Subscribers.Put(whatsAppSubscriber("sub-001", "+14155550100"))
	ctx := context.Background()

	item, err := f.svc.Enqueue(ctx, domain.EnqueueRequest{
		Kind:     domain.QueueWhatsAppMessage,
		Priority: 3,
		Payload:  json.RawMessage(`{"subscriber_id":"sub-001","phone_number":"+14155550100","quote_id":"q1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "whatsapp", item.ServiceName)
	assert.Equal(t, domain.DefaultQueueMaxAttempts, item.MaxAttempts)

	out, err := f.svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Completed)

	n := f.notification("sub-001", "q1", domain.ChannelWhatsApp)
	require.NotNil(t, n)
	assert.Equal(t, domain.StatusSent, n.Status)
}

func TestEnqueue_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.EnqueueRequest
		wantErr error
	}{
		{
			name:    "unknown kind",
			req:     domain.EnqueueRequest{Kind: "sms", Payload: json.RawMessage(`{}`)},
			wantErr: domain.ErrUnknownQueueKind,
		},
		{
			name:    "missing subscriber",
			req:     domain.EnqueueRequest{Kind: domain.QueueQuoteEmail, Payload: json.RawMessage(`{"quote_id":"q1"}`)},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "phone not e164",
			req:     domain.EnqueueRequest{Kind: domain.QueueWhatsAppMessage, Payload: json.RawMessage(`{"subscriber_id":"s","phone_number":"555-0100"}`)},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "payload not json",
			req:     domain.EnqueueRequest{Kind: domain.QueueQuoteEmail, Payload: json.RawMessage(`"nope"`)},
			wantErr: domain.ErrInvalidRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Enqueue(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
