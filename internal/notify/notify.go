// Package notify posts short flow summaries to an ntfy topic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var errNoEndpoint = errors.New("ntfy endpoint is required")

// Notifier sends messages to one ntfy endpoint. A nil Notifier, or one with
// an empty endpoint, does nothing.
type Notifier struct {
	endpoint string
	client   *http.Client
}

func New(endpoint string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{endpoint: strings.TrimSpace(endpoint), client: client}
}

// Notify sends message and logs, rather than returns, delivery failures.
func (n *Notifier) Notify(ctx context.Context, title, message string) {
	if n == nil || n.endpoint == "" {
		return
	}
	if err := send(ctx, n.client, n.endpoint, title, message); err != nil {
		slog.Warn("ntfy notification failed", "endpoint", n.endpoint, "error", err)
	}
}

// Send posts message to endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return send(ctx, client, endpoint, "", message)
}

func send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	if strings.TrimSpace(endpoint) == "" {
		return errNoEndpoint
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
