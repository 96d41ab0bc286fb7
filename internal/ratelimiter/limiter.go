package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/quotecast/notifier/internal/domain"
)

// ChannelLimiters holds one token bucket limiter per delivery channel.
// Providers publish per-second send limits; the dispatcher's concurrent
// batch sends wait here instead of bursting past them and collecting 429s.
type ChannelLimiters struct {
	limiters map[domain.Channel]*rate.Limiter
}

// New creates limiters allowing emailPerSec and whatsappPerSec sends.
// Burst equals the rate so no saved-up capacity exceeds the per-second cap.
func New(emailPerSec, whatsappPerSec int) *ChannelLimiters {
	return &ChannelLimiters{
		limiters: map[domain.Channel]*rate.Limiter{
			domain.ChannelEmail:    rate.NewLimiter(rate.Limit(emailPerSec), emailPerSec),
			domain.ChannelWhatsApp: rate.NewLimiter(rate.Limit(whatsappPerSec), whatsappPerSec),
		},
	}
}

// Unlimited returns limiters that never block. Used by tests and tools.
func Unlimited() *ChannelLimiters {
	return &ChannelLimiters{
		limiters: map[domain.Channel]*rate.Limiter{
			domain.ChannelEmail:    rate.NewLimiter(rate.Inf, 0),
			domain.ChannelWhatsApp: rate.NewLimiter(rate.Inf, 0),
		},
	}
}

// Wait blocks until the channel's limiter grants a token.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (cl *ChannelLimiters) Wait(ctx context.Context, ch domain.Channel) error {
	l, ok := cl.limiters[ch]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
