package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/provider"
)

func failedRecord(subscriberID, quoteID string, retryCount int, due time.Time) *domain.Notification {
	kind := string(domain.FailureNetwork)
	msg := "network timeout"
	return &domain.Notification{
		ID:           "n-" + subscriberID,
		SubscriberID: subscriberID,
		QuoteID:      quoteID,
		Channel:      domain.ChannelEmail,
		Recipient:    subscriberID + "@example.com",
		Status:       domain.StatusFailed,
		RetryCount:   retryCount,
		NextRetryAt:  &due,
		ErrorKind:    &kind,
		ErrorMessage: &msg,
		CreatedAt:    due.Add(-time.Hour),
	}
}

func TestRetryFailedNotifications(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	f.seedSubscribers(4)

	f.mocks.Notifications.Put(failedRecord("sub-001", "q1", 0, t0.Add(-time.Minute))) // recovers
	f.mocks.Notifications.Put(failedRecord("sub-002", "q1", 1, t0.Add(-time.Minute))) // fails again
	f.mocks.Notifications.Put(failedRecord("sub-003", "q1", 4, t0.Add(-time.Minute))) // last attempt fails
	f.mocks.Notifications.Put(failedRecord("sub-004", "q1", 0, t0.Add(time.Minute)))  // not due yet

	f.email.SendFunc = func(msg *provider.EmailMessage) (*provider.SendResponse, error) {
		if msg.To == "sub-001@example.com" {
			return &provider.SendResponse{MessageID: "ok"}, nil
		}
		return nil, errors.New("i/o timeout")
	}

	run, err := f.svc.RetryFailedNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, run.Due)
	assert.Equal(t, 1, run.Sent)
	assert.Equal(t, 1, run.Rescheduled)
	assert.Equal(t, 1, run.Exhausted)
	assert.Equal(t, 3, f.email.Calls())

	recovered := f.notification("sub-001", "q1", domain.ChannelEmail)
	assert.Equal(t, domain.StatusSent, recovered.Status)
	assert.Nil(t, recovered.NextRetryAt)
	assert.Nil(t, recovered.ErrorKind)

	again := f.notification("sub-002", "q1", domain.ChannelEmail)
	assert.Equal(t, domain.StatusFailed, again.Status)
	assert.Equal(t, 2, again.RetryCount)
	require.NotNil(t, again.NextRetryAt)
	assert.Equal(t, t0.Add(45*time.Minute), *again.NextRetryAt)

	exhausted := f.notification("sub-003", "q1", domain.ChannelEmail)
	assert.Equal(t, domain.MaxRetries, exhausted.RetryCount)
	assert.Nil(t, exhausted.NextRetryAt)

	alerts := f.mocks.Admin.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityWarning, alerts[0].Severity)

	// Only the rescheduled row comes due again; sent and exhausted rows stay put.
	f.now = t0.Add(24 * time.Hour)
	f.mocks.Notifications.Put(failedRecord("sub-004", "q1", 0, t0.Add(48*time.Hour)))
	run, err = f.svc.RetryFailedNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Due)
	assert.Equal(t, domain.StatusSent, f.notification("sub-001", "q1", domain.ChannelEmail).Status)
}

func TestRetryFailedNotifications_NonRetryableStops(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	f.seedSubscribers(1)
	f.mocks.Notifications.Put(failedRecord("sub-001", "q1", 2, t0))
	f.email.SendFunc = func(*provider.EmailMessage) (*provider.SendResponse, error) {
		return nil, errors.New("Invalid email address")
	}

	run, err := f.svc.RetryFailedNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Permanent)
	assert.Empty(t, f.mocks.Admin.Alerts())

	n := f.notification("sub-001", "q1", domain.ChannelEmail)
	assert.Nil(t, n.NextRetryAt)
	assert.Equal(t, string(domain.FailureInvalidEmail), *n.ErrorKind)
}

func TestRetryFailedNotifications_BreakerOpenSkips(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	f.seedSubscribers(2)
	f.mocks.Notifications.Put(failedRecord("sub-001", "q1", 0, t0))
	f.mocks.Notifications.Put(failedRecord("sub-002", "q1", 0, t0))
	f.openBreaker("email")

	run, err := f.svc.RetryFailedNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, run.Skipped)
	assert.Zero(t, f.email.Calls())

	n := f.notification("sub-001", "q1", domain.ChannelEmail)
	assert.Equal(t, 0, n.RetryCount, "skipped rows keep their schedule")
}

func TestRetryFailedNotifications_AbandonsIneligibleSubscribers(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	gone := activeSubscriber("sub-001")
	gone.Status = domain.SubscriberUnsubscribed
	f.mocks.Subscribers.Put(gone)
	f.mocks.Notifications.Put(failedRecord("sub-001", "q1", 0, t0))
	f.mocks.Notifications.Put(failedRecord("sub-404", "q1", 0, t0))

	run, err := f.svc.RetryFailedNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, run.Abandoned)
	assert.Zero(t, f.email.Calls())
	assert.Nil(t, f.notification("sub-001", "q1", domain.ChannelEmail).NextRetryAt)
}

func TestRetryFailedNotifications_WhatsAppRecords(t *testing.T) {
	f := newFixture(t)
	f.mocks.Quotes.Put(liveQuote("q1"))
	f.mocks.Subscribers.Put(whatsAppSubscriber("sub-001", "+14155550100"))
	rec := failedRecord("sub-001", "q1", 0, t0)
	rec.Channel = domain.ChannelWhatsApp
	rec.Recipient = "+14155550100"
	f.mocks.Notifications.Put(rec)

	run, err := f.svc.RetryFailedNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Sent)
	assert.Zero(t, f.email.Calls())

	msgs := f.whatsapp.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "+14155550100", msgs[0].To)
	assert.Equal(t, "daily_quote", msgs[0].Name)
}

func TestRetryFailedNotifications_Overlap(t *testing.T) {
	f := newFixture(t)
	release, ok, _ := f.locker.Acquire(context.Background(), "retry-failed-notifications", time.Minute)
	require.True(t, ok)
	defer release()

	_, err := f.svc.RetryFailedNotifications(context.Background())
	assert.ErrorIs(t, err, domain.ErrJobRunning)
}
