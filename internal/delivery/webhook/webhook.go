// Package webhook posts reports as JSON to an HTTP endpoint such as a Home
// Assistant webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Defaults for Config.
const (
	DefaultTitle   = "Job watcher"
	DefaultTimeout = 15 * time.Second
)

// Config describes the webhook target.
type Config struct {
	URL     string
	Title   string
	Timeout time.Duration
}

// Webhook POSTs {"title": ..., "message": ...} to a URL.
type Webhook struct {
	url    string
	title  string
	client *http.Client
}

type payload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// New creates a Webhook deliverer.
func New(cfg Config) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is required")
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Webhook{
		url:    cfg.URL,
		title:  cfg.Title,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Deliver sends the report once. Any non-2xx status is an error.
func (w *Webhook) Deliver(ctx context.Context, text string) error {
	body, err := json.Marshal(payload{Title: w.title, Message: text})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	return nil
}
