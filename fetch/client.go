package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Config holds the network behavior of a Client.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Default: 5
	MaxRetries int

	// ConnectTimeout bounds TCP connection establishment.
	// Default: 5s
	ConnectTimeout time.Duration

	// ReadTimeout bounds the wait for response headers after the request
	// is written. Default: 30s
	ReadTimeout time.Duration

	// BaseDelay is the first backoff delay; it doubles per retry.
	// Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps backoff and Retry-After hints. Default: 60s
	MaxDelay time.Duration

	// UserAgent is sent on every request.
	UserAgent string
}

// DefaultConfig returns settings suitable for polite bulk downloads.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     5,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    30 * time.Second,
		BaseDelay:      time.Second,
		MaxDelay:       60 * time.Second,
		UserAgent:      "mtgindex/1.0 (+https://github.com/poiesic/mtgindex)",
	}
}

// Validate checks that the configuration is valid and complete.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("fetch config: MaxRetries cannot be negative")
	}
	if c.ConnectTimeout < time.Second {
		return errors.New("fetch config: ConnectTimeout must be at least 1s")
	}
	if c.ReadTimeout < 5*time.Second {
		return errors.New("fetch config: ReadTimeout must be at least 5s")
	}
	if c.BaseDelay <= 0 {
		return errors.New("fetch config: BaseDelay must be positive")
	}
	if c.MaxDelay < c.BaseDelay {
		return errors.New("fetch config: MaxDelay must be at least BaseDelay")
	}
	if c.UserAgent == "" {
		return errors.New("fetch config: UserAgent is required")
	}
	return nil
}

// Client is a retrying HTTP fetcher with a pooled transport. It never
// touches disk; callers consume the returned body streams. Safe for
// concurrent use.
type Client struct {
	http      *http.Client
	policy    Policy
	userAgent string
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithPolicy replaces the retry policy derived from the config. Used by
// tests to inject a fake clock.
func WithPolicy(p Policy) Option {
	return func(c *Client) error {
		if p.MaxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.policy = p
		return nil
	}
}

// NewClient creates a retrying fetch client. A nil cfg uses DefaultConfig.
func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}

	c := &Client{
		http: &http.Client{Transport: transport},
		policy: Policy{
			MaxAttempts: cfg.MaxRetries + 1,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
		},
		userAgent: cfg.UserAgent,
		logger:    slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Policy returns the client's retry policy, for reuse by callers that retry
// non-HTTP operations on the same schedule.
func (c *Client) Policy() Policy {
	return c.policy
}

// Get retrieves url, retrying transient failures under the client's policy.
// On success the caller owns the returned body and must close it. Failures
// return a *Error.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Attempts: 0, Reason: ErrNonRetryable, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		var retryAfter time.Duration
		switch {
		case err != nil:
			// Transport-level failure (refused, reset, timeout): transient.
			lastErr, lastStatus = err, 0

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp.Body, nil

		default:
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			drainAndClose(resp.Body)
			if !retryableStatus(resp.StatusCode) {
				return nil, &Error{URL: url, StatusCode: resp.StatusCode, Attempts: attempt, Reason: ErrNonRetryable}
			}
			lastErr, lastStatus = nil, resp.StatusCode
		}

		if attempt == c.policy.MaxAttempts {
			break
		}

		delay := c.policy.Backoff(attempt)
		if retryAfter > delay {
			delay = retryAfter
			if c.policy.MaxDelay > 0 && delay > c.policy.MaxDelay {
				delay = c.policy.MaxDelay
			}
		}

		c.logger.Debug("retrying fetch",
			"url", url,
			"attempt", attempt,
			"status", lastStatus,
			"delay", delay,
			"error", lastErr)

		if err := c.policy.wait(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &Error{
		URL:        url,
		StatusCode: lastStatus,
		Attempts:   c.policy.MaxAttempts,
		Reason:     ErrRetriesExhausted,
		Err:        lastErr,
	}
}

// GetBytes retrieves url and reads the entire response into memory.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return data, nil
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// retryableStatus reports whether a status code is a transient condition:
// rate limiting or a server-side failure.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// parseRetryAfter reads a Retry-After value, either delta-seconds or an
// HTTP date. Returns 0 when absent or unparseable.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// drainAndClose consumes a little of the body before closing so the
// underlying connection can be reused.
func drainAndClose(body io.ReadCloser) {
	io.CopyN(io.Discard, body, 4096)
	body.Close()
}
