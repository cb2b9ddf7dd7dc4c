package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollama/ollama/api"
	"github.com/sony/gobreaker"

	"sentinel-brain/internal/metrics"
	"sentinel-brain/internal/modules/advice/policy"
)

type Config struct {
	BaseURL         string
	Model           string
	Timeout         time.Duration
	MaxRetries      int
	BreakerFailures int
	BreakerOpen     time.Duration
	// RetryInterval is the wait before the single retry. Zero uses 500ms.
	RetryInterval time.Duration
}

// Client generates JSON-constrained chat completions from an Ollama server.
type Client struct {
	api     *api.Client
	model   string
	timeout time.Duration
	retries uint64
	wait    time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse LLM base url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxRetries > 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = 5
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}

	c := &Client{
		api:     api.NewClient(base, &http.Client{}),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		retries: uint64(cfg.MaxRetries),
		wait:    cfg.RetryInterval,
		logger:  logger,
	}
	failures := uint32(cfg.BreakerFailures)
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm-backend",
		Timeout: cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return c, nil
}

// Generate sends prompt as a single user message and returns the model's
// message content. Errors wrap policy.ErrBackendTimeout or
// policy.ErrBackendUnavailable.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.chatWithRetry(ctx, prompt)
	})
	if err != nil {
		err = c.classify(err)
		metrics.ObserveBackendCall(resultOf(err), time.Since(start))
		return "", err
	}

	metrics.ObserveBackendCall(metrics.ResultSuccess, time.Since(start))
	return out.(string), nil
}

func (c *Client) chatWithRetry(ctx context.Context, prompt string) (string, error) {
	var content string
	attempt := 0

	op := func() error {
		attempt++
		if attempt > 1 {
			metrics.IncBackendRetry()
			c.logger.Info("retrying LLM backend call", "attempt", attempt, "model", c.model)
		}
		out, err := c.chat(ctx, prompt)
		if err != nil {
			if !retryable(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}
		content = out
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.wait
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.retries), ctx))
	return content, err
}

func (c *Client) chat(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	stream := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Stream: &stream,
		Format: json.RawMessage(`"json"`),
	}

	var content string
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// retryable reports whether a failed attempt may be repeated: transport
// errors and 5xx responses, never timeouts or caller cancellation.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func (c *Client) classify(err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: circuit breaker open: %w", policy.ErrBackendUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", policy.ErrBackendTimeout, err)
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Errorf("%w: backend returned %d: %s", policy.ErrBackendUnavailable, statusErr.StatusCode, statusErr.ErrorMessage)
	}
	return fmt.Errorf("%w: %w", policy.ErrBackendUnavailable, err)
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, policy.ErrBackendTimeout):
		return metrics.ResultTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return metrics.ResultBreakerOpen
	default:
		return metrics.ResultError
	}
}
