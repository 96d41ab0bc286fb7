package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// maxErrorBody bounds how much of an error response is kept for logging and
// classification.
const maxErrorBody = 2048

// tripAfter matches the persisted breaker's default threshold, so a process
// gives up on an endpoint after as many consecutive failures as the shared
// breaker tolerates across processes.
const tripAfter = 5

// breakerSettings configures an in-process guard. isSuccessful reports the
// errors that are the caller's fault and must not count as failures.
func breakerSettings(name string, isSuccessful func(error) bool) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		IsSuccessful: isSuccessful,
	}
}

// jsonClient posts JSON to a provider API behind an in-process circuit
// breaker. The persisted breaker decides whether a send may start; this one
// stops a single process from hammering an endpoint that is already down.
type jsonClient struct {
	name       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

func newJSONClient(name string, timeout time.Duration) *jsonClient {
	return &jsonClient{
		name:       name,
		httpClient: &http.Client{Timeout: timeout},
		// Client errors (bad address, bad template) do not trip the breaker.
		breaker: gobreaker.NewCircuitBreaker[[]byte](breakerSettings(name, func(err error) bool {
			if err == nil {
				return true
			}
			if se, ok := err.(*StatusError); ok {
				return se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
			}
			return false
		})),
	}
}

// post sends body as JSON and decodes a 2xx response into out.
func (c *jsonClient) post(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			if len(data) > maxErrorBody {
				data = data[:maxErrorBody]
			}
			return nil, &StatusError{Provider: c.name, StatusCode: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
