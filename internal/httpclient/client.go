// Package httpclient downloads source files with bounded exponential-backoff
// retry. Server errors, timeouts and transport failures are transient and
// retried; client errors are terminal immediately.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// FetchError reports a download that could not be completed. StatusCode is
// zero when the failure happened below the HTTP layer.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client is a retrying download client. It holds no mutable state beyond the
// underlying http.Client, so it is safe for concurrent use across sources.
type Client struct {
	http       *http.Client
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries sets the total number of attempts (default 3).
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithTimeout sets the per-attempt timeout. Source files can run to
// gigabytes, so the default is deliberately long.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithBaseDelay sets the backoff unit; retry n waits baseDelay * 2^(n-1).
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// New creates a download client.
func New(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: 5 * time.Minute},
		maxRetries: 3,
		baseDelay:  time.Second,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Download fetches url and returns the response body. Optional headers are
// applied to every attempt; this is the injection point for sources that
// require an API key.
func (c *Client) Download(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * (1 << (attempt - 1))
			c.logger.Warn("retrying download",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, &FetchError{URL: url, Err: ctx.Err()}
			case <-timer.C:
			}
		}

		body, retryable, err := c.attempt(ctx, url, headers)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// attempt performs one request. The second return reports whether the
// failure is transient.
func (c *Client) attempt(ctx context.Context, url string, headers map[string]string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, &FetchError{URL: url, Err: err}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures and timeouts are transient.
		return nil, true, &FetchError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, true, &FetchError{URL: url, Err: fmt.Errorf("failed to read response body: %w", readErr)}
		}
		return body, false, nil
	case resp.StatusCode >= 500:
		return nil, true, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("server error")}
	default:
		// 4xx: the request itself is wrong, retrying cannot help.
		return nil, false, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("client error")}
	}
}
