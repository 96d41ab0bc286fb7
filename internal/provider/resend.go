package provider

import (
	"context"
	"strings"
	"time"
)

// ResendProvider delivers email through the Resend HTTP API.
// The base URL is injected from config so tests can point to a local server.
type ResendProvider struct {
	baseURL string
	apiKey  string
	from    string
	client  *jsonClient
}

type resendRequest struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html"`
	Text    string      `json:"text,omitempty"`
	Tags    []resendTag `json:"tags,omitempty"`
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func NewResendProvider(baseURL, apiKey, from string, timeout time.Duration) *ResendProvider {
	return &ResendProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		from:    from,
		client:  newJSONClient("resend", timeout),
	}
}

// SendEmail posts the message to /emails and returns the provider message id.
func (p *ResendProvider) SendEmail(ctx context.Context, msg *EmailMessage) (*SendResponse, error) {
	req := resendRequest{
		From:    p.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}
	for name, value := range msg.Tags {
		req.Tags = append(req.Tags, resendTag{Name: name, Value: value})
	}

	var resp SendResponse
	err := p.client.post(ctx, p.baseURL+"/emails",
		map[string]string{"Authorization": "Bearer " + p.apiKey}, req, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// compile-time check that ResendProvider implements EmailSender
var _ EmailSender = (*ResendProvider)(nil)
