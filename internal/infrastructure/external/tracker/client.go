// Package tracker implements the study-tracker API client. The tracker
// is the external system of record for raw activity: assigned and
// completed mission units, tracked study minutes, and focus sessions.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/pkg/circuitbreaker"
	"github.com/arena-hub/arena-rank/pkg/metrics"
	"github.com/arena-hub/arena-rank/pkg/retry"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the tracker API client.
type Config struct {
	// BaseURL is the tracker API base URL.
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates this service with the tracker.
	APIKey string `koanf:"api_key"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `koanf:"timeout"`

	// RateLimiter paces outgoing requests.
	RateLimiter RateLimiterConfig `koanf:"rate_limiter"`

	// Debug enables request-level debug logging.
	Debug bool `koanf:"debug"`
}

// DefaultConfig returns sensible defaults for the given base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		Timeout:     30 * time.Second,
		RateLimiter: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the study-tracker API. Every request passes through a
// circuit breaker, a retry policy with exponential backoff, and a local
// rate limiter, in that order.
type Client struct {
	config      Config
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *metrics.Manager
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
}

var _ scoring.ActivitySource = (*Client)(nil)

// NewClient creates a tracker API client. The metrics manager may be nil.
func NewClient(config Config, mgr *metrics.Manager, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:      logger,
		metrics:     mgr,
		rateLimiter: NewRateLimiter(config.RateLimiter),
		retrier:     retry.TrackerAPIRetrier(),
	}
	c.breaker = circuitbreaker.TrackerAPIBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("tracker circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
	})

	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchActivity returns the member's accumulated counters for the range.
func (c *Client) FetchActivity(ctx context.Context, memberID string, rng scoring.DateRange) (scoring.RawActivity, error) {
	if memberID == "" {
		return scoring.RawActivity{}, scoring.ErrMemberIDEmpty
	}

	params := url.Values{}
	params.Set("from", timeutil.DateString(rng.From))
	params.Set("to", timeutil.DateString(rng.To))
	path := fmt.Sprintf("/api/v1/members/%s/activity?%s", url.PathEscape(memberID), params.Encode())

	var response APIResponse[ActivityDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return scoring.RawActivity{}, fmt.Errorf("fetch activity for %s: %w", memberID, err)
	}

	if !response.Success {
		return scoring.RawActivity{}, fmt.Errorf("tracker: api error: %s", response.Error)
	}

	return toRawActivity(response.Data), nil
}

// toRawActivity maps the wire payload to the domain type. A null focus
// ratio stays nil: no measurement is not the same as a measured zero.
func toRawActivity(dto ActivityDTO) scoring.RawActivity {
	raw := scoring.RawActivity{
		AssignedUnits:  dto.AssignedUnits,
		CompletedUnits: dto.CompletedUnits,
		ActiveMinutes:  dto.ActiveMinutes,
	}
	if dto.FocusRatio != nil {
		v := *dto.FocusRatio
		raw.FocusRatio = &v
	}
	return raw
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// httpError is a non-2xx response without a structured error body.
type httpError struct {
	Status int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("tracker: api error: status %d", e.Status)
}

// doRequest performs an HTTP request behind the circuit breaker, with
// retries and rate limiting.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.rateLimiter.Allow(ctx); err != nil {
				return err
			}

			err := c.doSingleRequest(ctx, method, path, body, result)
			if err == nil {
				c.metrics.RecordTrackerRequest("ok")
				return nil
			}

			var rateLimitErr *RateLimitError
			if errors.As(err, &rateLimitErr) {
				c.metrics.RecordTrackerRequest("rate_limited")
				c.rateLimiter.RecordThrottle()
				return retry.Retryable(err)
			}
			c.metrics.RecordTrackerRequest("error")
			if isRetryable(err) {
				return retry.Retryable(err)
			}
			return err
		})
	})
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, body, result any) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.logger.Debug("tracker api request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 60 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{
			RetryAfter: retryAfter,
			Message:    "tracker: rate limit exceeded",
		}
	}

	if resp.StatusCode >= 400 {
		var apiErr APIErrorDTO
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			if resp.StatusCode >= 500 {
				return fmt.Errorf("%w: %w", &httpError{Status: resp.StatusCode}, &apiErr)
			}
			return &apiErr
		}
		return &httpError{Status: resp.StatusCode}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// isRetryable reports whether a request is worth repeating. Server-side
// failures and transport hiccups are; client errors are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= 500
	}

	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) {
		return false
	}

	// Transport-level errors are generally transient.
	msg := err.Error()
	for _, hint := range []string{"timeout", "connection refused", "temporary", "reset", "EOF"} {
		if containsStr(msg, hint) {
			return true
		}
	}
	return false
}

func containsStr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Healthy reports whether the tracker API is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	var response APIResponse[map[string]any]
	err := c.doSingleRequest(ctx, http.MethodGet, "/health", nil, &response)
	return err == nil && response.Success
}

// Status describes the client's resilience machinery.
type Status struct {
	RateLimiter   RateLimiterStatus
	CircuitState  string
	CircuitCounts circuitbreaker.Counts
	Healthy       bool
}

// Status returns the current status of the client.
func (c *Client) Status(ctx context.Context) Status {
	return Status{
		RateLimiter:   c.rateLimiter.Status(),
		CircuitState:  c.breaker.State().String(),
		CircuitCounts: c.breaker.Counts(),
		Healthy:       c.Healthy(ctx),
	}
}

// Reset clears the rate limiter and circuit breaker state.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.breaker.Reset()
}
