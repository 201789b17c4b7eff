package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hallbook/schedule"
)

const defaultUserAgent = "hallbook/1"

// WebhookNotifier POSTs every event as JSON to a fixed URL.
type WebhookNotifier struct {
	HTTP      *http.Client
	URL       string
	UserAgent string
	// Secret, when set, is sent as a bearer token.
	Secret string
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		URL:       url,
		UserAgent: defaultUserAgent,
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, event schedule.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := w.newRequest(ctx, http.MethodPost, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-Hallbook-Event", string(event.Type))
	if err := w.doStatus(req); err != nil {
		return fmt.Errorf("webhook %s: %w", event.Type, err)
	}
	return nil
}

func (w *WebhookNotifier) newRequest(ctx context.Context, method string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, w.URL, body)
	if err != nil {
		return nil, err
	}
	agent := w.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}
	req.Header.Set("User-Agent", agent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if w.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+w.Secret)
	}
	return req, nil
}

func (w *WebhookNotifier) doStatus(req *http.Request) error {
	client := w.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
