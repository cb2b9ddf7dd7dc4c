package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"sentinel-brain/internal/metrics"
)

// Message is one push notification.
type Message struct {
	Title string
	Body  string
	// Priority is an ntfy priority name: min, low, default, high, urgent.
	Priority string
	Tags     []string
}

// Ntfy publishes messages to an ntfy topic with a plain text POST.
type Ntfy struct {
	baseURL string
	topic   string
	client  *http.Client
	logger  *slog.Logger
}

func NewNtfy(baseURL, topic string, logger *slog.Logger) *Ntfy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ntfy{
		baseURL: strings.TrimRight(baseURL, "/"),
		topic:   strings.TrimSpace(topic),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Notify sends msg. Without a configured topic the message is logged and
// dropped.
func (n *Ntfy) Notify(ctx context.Context, msg Message) error {
	if n.topic == "" {
		n.logger.Warn("notification skipped: NOTIFICATION_TARGET is not set", "title", msg.Title)
		metrics.IncNotification("skipped")
		return nil
	}

	endpoint := n.baseURL + "/" + url.PathEscape(n.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if title := headerValue(msg.Title); title != "" {
		req.Header.Set("Title", title)
	}
	if priority := headerValue(msg.Priority); priority != "" {
		req.Header.Set("Priority", priority)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", headerValue(strings.Join(msg.Tags, ",")))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.IncNotification("error")
		return fmt.Errorf("post ntfy: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.IncNotification("error")
		return fmt.Errorf("ntfy returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	metrics.IncNotification("sent")
	n.logger.Info("notification sent", "title", msg.Title)
	return nil
}

// headerValue replaces control characters with spaces. net/http rejects header
// values containing CR or LF.
func headerValue(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s))
}
