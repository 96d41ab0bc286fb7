package domain

import "time"

// QuoteStatus is the publication state of a quote.
type QuoteStatus string

const (
	QuoteDraft     QuoteStatus = "draft"
	QuoteScheduled QuoteStatus = "scheduled"
	QuoteLive      QuoteStatus = "live"
)

// Quote is the content item whose transition to live fans out notifications.
// Author and category are denormalised names; the pipeline never edits them.
type Quote struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	Author    string      `json:"author"`
	Category  string      `json:"category"`
	Status    QuoteStatus `json:"status"`
	PostDate  time.Time   `json:"post_date"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// IsLive reports whether the quote may be sent to subscribers.
func (q *Quote) IsLive() bool { return q.Status == QuoteLive }

// DayStart truncates t to midnight UTC. Scheduled quotes are due once their
// post_date is on or before this instant.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
