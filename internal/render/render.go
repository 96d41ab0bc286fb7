// Package render turns a quote and a subscriber into the email that announces it.
package render

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/osteele/liquid"

	"github.com/quotecast/notifier/internal/domain"
	"github.com/quotecast/notifier/internal/provider"
)

const subjectTemplate = `Today's quote{% if author != "" %} from {{ author }}{% endif %}`

const htmlTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Georgia, serif; background: #faf7f2; padding: 24px;">
  <p>Hi {{ name | default: "there" }},</p>
  <blockquote style="font-size: 20px; border-left: 4px solid #c9a227; padding-left: 16px;">
    &ldquo;{{ text | escape }}&rdquo;
  </blockquote>
  {% if author != "" %}<p style="font-style: italic;">&mdash; {{ author | escape }}</p>{% endif %}
  {% if category != "" %}<p style="color: #888;">{{ category | escape }}</p>{% endif %}
  <p><a href="{{ quote_url }}">Read it on the site</a></p>
  <hr>
  <p style="font-size: 12px; color: #999;">
    You receive this because you subscribed to new quotes.
    <a href="{{ unsubscribe_url }}">Unsubscribe</a>
  </p>
</body>
</html>`

const textTemplate = `Hi {{ name | default: "there" }},

"{{ text }}"{% if author != "" %}
- {{ author }}{% endif %}

Read it on the site: {{ quote_url }}

Unsubscribe: {{ unsubscribe_url }}`

// QuoteEmail renders the new-quote email. Templates are parsed once at
// construction, so a Renderer is safe for concurrent use by the dispatcher.
type QuoteEmail struct {
	siteURL string
	subject *liquid.Template
	html    *liquid.Template
	text    *liquid.Template
}

// NewQuoteEmail parses the built-in templates.
func NewQuoteEmail(siteURL string) (*QuoteEmail, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value any, fallback string) any {
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return fallback
		}
		if value == nil {
			return fallback
		}
		return value
	})

	parse := func(name, src string) (*liquid.Template, error) {
		tpl, err := engine.ParseString(src)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		return tpl, nil
	}

	r := &QuoteEmail{siteURL: strings.TrimRight(siteURL, "/")}
	var err error
	if r.subject, err = parse("subject", subjectTemplate); err != nil {
		return nil, err
	}
	if r.html, err = parse("html", htmlTemplate); err != nil {
		return nil, err
	}
	if r.text, err = parse("text", textTemplate); err != nil {
		return nil, err
	}
	return r, nil
}

// Render builds the message for one subscriber.
func (r *QuoteEmail) Render(q *domain.Quote, s *domain.Subscriber) (*provider.EmailMessage, error) {
	bindings := map[string]any{
		"name":            s.Name,
		"text":            q.Text,
		"author":          q.Author,
		"category":        q.Category,
		"quote_url":       r.siteURL + "/quotes/" + url.PathEscape(q.ID),
		"unsubscribe_url": r.siteURL + "/unsubscribe?id=" + url.QueryEscape(s.ID),
	}

	subject, err := r.subject.RenderString(bindings)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	html, err := r.html.RenderString(bindings)
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	text, err := r.text.RenderString(bindings)
	if err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}

	return &provider.EmailMessage{
		To:      s.Email,
		Subject: strings.TrimSpace(subject),
		HTML:    html,
		Text:    text,
		Tags: map[string]string{
			"quote_id":      q.ID,
			"subscriber_id": s.ID,
		},
	}, nil
}
