package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// WhatsAppCloudProvider sends template messages through the WhatsApp Cloud
// API (graph.facebook.com/{version}/{phone-number-id}/messages).
type WhatsAppCloudProvider struct {
	baseURL       string
	phoneNumberID string
	token         string
	client        *jsonClient
}

type waRequest struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Template         waTemplate `json:"template"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components,omitempty"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func NewWhatsAppCloudProvider(baseURL, phoneNumberID, token string, timeout time.Duration) *WhatsAppCloudProvider {
	return &WhatsAppCloudProvider{
		baseURL:       strings.TrimRight(baseURL, "/"),
		phoneNumberID: phoneNumberID,
		token:         token,
		client:        newJSONClient("whatsapp", timeout),
	}
}

func (p *WhatsAppCloudProvider) SendTemplate(ctx context.Context, msg *WhatsAppTemplate) (*SendResponse, error) {
	req := waRequest{
		MessagingProduct: "whatsapp",
		// The Cloud API expects digits only, without the leading +.
		To:   strings.TrimPrefix(msg.To, "+"),
		Type: "template",
		Template: waTemplate{
			Name:     msg.Name,
			Language: waLanguage{Code: msg.Language},
		},
	}
	if len(msg.Parameters) > 0 {
		params := make([]waParameter, len(msg.Parameters))
		for i, p := range msg.Parameters {
			params[i] = waParameter{Type: "text", Text: p}
		}
		req.Template.Components = []waComponent{{Type: "body", Parameters: params}}
	}

	var resp waResponse
	url := fmt.Sprintf("%s/%s/messages", p.baseURL, p.phoneNumberID)
	if err := p.client.post(ctx, url, map[string]string{"Authorization": "Bearer " + p.token}, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, fmt.Errorf("whatsapp response carried no message id")
	}
	return &SendResponse{MessageID: resp.Messages[0].ID}, nil
}

var _ WhatsAppSender = (*WhatsAppCloudProvider)(nil)
