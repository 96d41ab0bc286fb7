package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/ratelimiter"
)

func TestChannelLimiters_BurstThenBlocks(t *testing.T) {
	l := ratelimiter.New(2, 1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, domain.ChannelEmail))
	require.NoError(t, l.Wait(ctx, domain.ChannelEmail))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(short, domain.ChannelEmail), "third token within the second must wait past the deadline")

	// Channels are independent.
	require.NoError(t, l.Wait(ctx, domain.ChannelWhatsApp))
}

func TestChannelLimiters_Unlimited(t *testing.T) {
	l := ratelimiter.Unlimited()
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Wait(context.Background(), domain.ChannelEmail))
	}
}
