package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nba_analytics/ingestion/internal/errs"
	"nba_analytics/ingestion/internal/metrics"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	userAgent        = "nba-analytics-ingestion/1.0"
	maxResponseBytes = 16 << 20
)

// Authorizer attaches provider credentials to a request
type Authorizer func(req *http.Request)

// HeaderAuth sets a header, e.g. BallDontLie's bare "Authorization: <key>"
func HeaderAuth(header, value string) Authorizer {
	return func(req *http.Request) {
		if value != "" {
			req.Header.Set(header, value)
		}
	}
}

// QueryAuth adds a query parameter, e.g. The Odds API's apiKey
func QueryAuth(param, value string) Authorizer {
	return func(req *http.Request) {
		if value == "" {
			return
		}
		q := req.URL.Query()
		q.Set(param, value)
		req.URL.RawQuery = q.Encode()
	}
}

// Config holds the per-provider client settings
type Config struct {
	Provider      string
	BaseURL       string
	Timeout       time.Duration // per call
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	MaxRetryAfter time.Duration
	Limiter       *RateLimiter
	Auth          Authorizer
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customizes a Client
type Option func(*Client)

// WithSleeper replaces the backoff sleep
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client is a rate-limited provider client with retry and exponential backoff
type Client struct {
	provider      string
	baseURL       string
	httpClient    *http.Client
	limiter       *RateLimiter
	auth          Authorizer
	maxRetries    int
	backoffBase   time.Duration
	backoffCap    time.Duration
	maxRetryAfter time.Duration
	sleep         Sleeper
}

// NewClient creates a provider client. cfg.Limiter should be shared by all clients of one provider.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		provider:      cfg.Provider,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		limiter:       cfg.Limiter,
		auth:          cfg.Auth,
		maxRetries:    cfg.MaxRetries,
		backoffBase:   cfg.BackoffBase,
		backoffCap:    cfg.BackoffCap,
		maxRetryAfter: cfg.MaxRetryAfter,
		sleep:         sleepContext,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	if c.limiter == nil {
		c.limiter = Unlimited(cfg.Provider)
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.backoffBase <= 0 {
		c.backoffBase = time.Second
	}
	if c.backoffCap < c.backoffBase {
		c.backoffCap = c.backoffBase
	}
	if c.maxRetryAfter <= 0 {
		c.maxRetryAfter = 60 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider name used in logs, metrics and errors
func (c *Client) Provider() string {
	return c.provider
}

// attemptResult is the outcome of a single HTTP exchange
type attemptResult struct {
	body       []byte
	status     int
	retryAfter time.Duration
	remaining  string
}

// Get performs a GET request with rate limiting, retries and exponential backoff.
// Transient failures that outlive the retries return ErrProviderUnavailable;
// non-transient ones return ErrProviderRejected immediately.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error
	var delay time.Duration

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			log.Info().
				Str("provider", c.provider).
				Str("path", path).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("Retrying provider request after backoff")
			metrics.RecordRetry(c.provider)

			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		res, err := c.do(ctx, path, query)
		elapsed := time.Since(start)

		if err != nil {
			// Caller cancellation is not a provider failure
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logAttempt(path, attempt, elapsed, "transport_error", 0).Err(err).Msg("Provider request failed")
			lastErr = fmt.Errorf("API request failed: %w", err)
			delay = c.backoff(attempt, 0, delay)
			continue
		}

		switch {
		case res.status >= 200 && res.status < 300:
			c.logAttempt(path, attempt, elapsed, "success", res.status).
				Int("size", len(res.body)).
				Str("requests_remaining", res.remaining).
				Msg("Provider request successful")
			return res.body, nil

		case res.status == http.StatusTooManyRequests || res.status >= 500:
			c.logAttempt(path, attempt, elapsed, "retryable", res.status).
				Dur("retry_after", res.retryAfter).
				Msg("Received retryable status")
			lastErr = fmt.Errorf("API returned retryable status %d: %s", res.status, truncate(res.body))
			delay = c.backoff(attempt, res.retryAfter, delay)

		default:
			c.logAttempt(path, attempt, elapsed, "rejected", res.status).Msg("Provider rejected request")
			return nil, errs.Rejected(c.provider, res.status, res.body)
		}
	}

	return nil, errs.Unavailable(c.provider, c.maxRetries+1, lastErr)
}

// GetJSON performs Get and decodes the body into out.
// A body that does not decode is a non-transient failure.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return errs.Malformed(c.provider, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (*attemptResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.auth != nil {
		c.auth(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &attemptResult{
		body:       body,
		status:     resp.StatusCode,
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		remaining:  resp.Header.Get("X-Requests-Remaining"),
	}, nil
}

// backoff returns base*2^attempt capped at backoffCap, raised to a Retry-After hint
// when one is present. The result never drops below prev.
func (c *Client) backoff(attempt int, retryAfter, prev time.Duration) time.Duration {
	d := c.backoffBase << uint(attempt)
	if d <= 0 || d > c.backoffCap {
		d = c.backoffCap
	}
	if retryAfter > 0 {
		if retryAfter > c.maxRetryAfter {
			retryAfter = c.maxRetryAfter
		}
		if retryAfter > d {
			d = retryAfter
		}
	}
	if d < prev {
		d = prev
	}
	return d
}

func (c *Client) logAttempt(path string, attempt int, elapsed time.Duration, outcome string, status int) *zerolog.Event {
	metrics.RecordAPICall(c.provider, outcome, elapsed.Seconds())

	ev := log.Debug()
	if outcome != "success" {
		ev = log.Warn()
	}
	return ev.
		Str("provider", c.provider).
		Str("path", path).
		Int("attempt", attempt+1).
		Dur("elapsed", elapsed).
		Str("outcome", outcome).
		Int("status", status)
}

// parseRetryAfter accepts delay-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
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
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}
