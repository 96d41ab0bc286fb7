package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), mr
}

func TestRedisLocker_ExcludesSecondHolder(t *testing.T) {
	l, _ := newRedisLocker(t)
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "process-notification-queue", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "process-notification-queue", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other job names are unaffected.
	_, ok, err = l.Acquire(ctx, "retry-failed-notifications", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	release()
	_, ok, err = l.Acquire(ctx, "process-notification-queue", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_ExpiredHolderCannotReleaseNewOwner(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	staleRelease, ok, err := l.Acquire(ctx, "job", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = l.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	staleRelease()
	assert.True(t, mr.Exists(keyPrefix+"job"), "new owner's lock must survive a stale release")
}

func TestRedisLocker_ConnectionError(t *testing.T) {
	l, mr := newRedisLocker(t)
	mr.Close()
	_, ok, err := l.Acquire(context.Background(), "job", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }
	ctx := context.Background()

	release, ok, _ := l.Acquire(ctx, "job", time.Minute)
	require.True(t, ok)

	_, ok, _ = l.Acquire(ctx, "job", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = l.Acquire(ctx, "job", time.Minute)
	assert.True(t, ok, "expired hold is reclaimable")

	// The first holder's release is now stale and must not free the new hold.
	release()
	_, ok, _ = l.Acquire(ctx, "job", time.Minute)
	assert.False(t, ok)
}
