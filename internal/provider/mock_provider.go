package provider

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockEmailSender records every message and delegates the outcome to SendFunc.
// A nil SendFunc succeeds with a generated message id.
type MockEmailSender struct {
	SendFunc func(msg *EmailMessage) (*SendResponse, error)

	mu    sync.Mutex
	sent  []*EmailMessage
	calls atomic.Int64
}

func (m *MockEmailSender) SendEmail(_ context.Context, msg *EmailMessage) (*SendResponse, error) {
	n := m.calls.Add(1)
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(msg)
	}
	return &SendResponse{MessageID: fmt.Sprintf("msg-%d", n)}, nil
}

// Calls returns how many sends were attempted.
func (m *MockEmailSender) Calls() int { return int(m.calls.Load()) }

// Messages returns a copy of the attempted messages.
func (m *MockEmailSender) Messages() []*EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*EmailMessage(nil), m.sent...)
}

// MockWhatsAppSender is the WhatsApp counterpart of MockEmailSender.
type MockWhatsAppSender struct {
	SendFunc func(msg *WhatsAppTemplate) (*SendResponse, error)

	mu   sync.Mutex
	sent []*WhatsAppTemplate
}

func (m *MockWhatsAppSender) SendTemplate(_ context.Context, msg *WhatsAppTemplate) (*SendResponse, error) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	n := len(m.sent)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(msg)
	}
	return &SendResponse{MessageID: fmt.Sprintf("wamid-%d", n)}, nil
}

func (m *MockWhatsAppSender) Messages() []*WhatsAppTemplate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*WhatsAppTemplate(nil), m.sent...)
}

var (
	_ EmailSender    = (*MockEmailSender)(nil)
	_ WhatsAppSender = (*MockWhatsAppSender)(nil)
)
