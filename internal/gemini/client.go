// Package gemini implements a minimal REST client for the Generative
// Language API, shared by the embedding and generation layers.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the production Generative Language API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// ErrUnavailable marks transient failures: rate limits, server errors, and
// network faults that persisted through every retry. Callers map it to a 503.
var ErrUnavailable = errors.New("gemini: service unavailable")

const (
	defaultMaxRetries = 5
	defaultTimeout    = 30 * time.Second
	maxErrorBody      = 2048
)

// Client talks to the Generative Language API over REST.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	maxRetries int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint; tests point it at a local server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger sets a logger for retry diagnostics. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxRetries bounds how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient creates a client. The API key must be non-empty.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required (set GEMINI_API_KEY)")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Post sends in as JSON to {base}/v1beta/models/{model}:{verb} and decodes
// the response into out. Rate limits (429), server errors (5xx), and network
// faults are retried with capped exponential backoff, honoring Retry-After;
// once retries are exhausted the error wraps ErrUnavailable. Any other
// non-2xx status is fatal and returned without retry.
func (c *Client) Post(ctx context.Context, model, verb string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:%s", c.baseURL, model, verb)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying gemini request",
				zap.String("model", model),
				zap.String("verb", verb),
				zap.Int("attempt", attempt))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if sleepErr := sleepCtx(ctx, retryDelay(attempt)); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryAfter(resp, attempt)
			drain(resp)
			lastErr = fmt.Errorf("%s %s: %s", verb, model, resp.Status)
			if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer resp.Body.Close()
			return fmt.Errorf("%s %s: %s: %s", verb, model, resp.Status, apiErrorMessage(resp.Body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode %s response: %w", verb, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// retryAfter returns the server-requested delay when a Retry-After header is
// present, otherwise the backoff for this attempt.
func retryAfter(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return retryDelay(attempt)
}

// retryDelay is an exponential backoff starting at 200ms, capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

// apiErrorMessage pulls the human-readable message out of an API error
// payload, falling back to the raw body.
func apiErrorMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(body) == 0 {
		return "no error detail"
	}
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return string(body)
}
