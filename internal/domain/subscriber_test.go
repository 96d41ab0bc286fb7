package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quotecast/notifier/internal/domain"
)

func TestSubscriber_WantsNewQuoteEmail(t *testing.T) {
	valid := domain.Subscriber{
		Status:          domain.SubscriberActive,
		EmailStatus:     domain.EmailVerified,
		NotifyNewQuotes: true,
	}
	assert.True(t, valid.WantsNewQuoteEmail())

	cases := map[string]func(s *domain.Subscriber){
		"inactive":      func(s *domain.Subscriber) { s.Status = domain.SubscriberInactive },
		"opted out":     func(s *domain.Subscriber) { s.NotifyNewQuotes = false },
		"unverified":    func(s *domain.Subscriber) { s.EmailStatus = domain.EmailPending },
		"three bounces": func(s *domain.Subscriber) { s.EmailBounceCount = 3 },
	}
	for name, mutate := range cases {
		s := valid
		mutate(&s)
		assert.False(t, s.WantsNewQuoteEmail(), name)
	}

	s := valid
	s.EmailBounceCount = 2
	assert.True(t, s.WantsNewQuoteEmail(), "two bounces still receive email")
}
