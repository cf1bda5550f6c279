package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/crisis-tweet-etl/internal/config"
	"github.com/couchcryptid/crisis-tweet-etl/internal/observability"
)

// ErrRateLimitExhausted is returned when a 429 is received and every
// credential in the pool has already been tried this cycle.
var ErrRateLimitExhausted = errors.New("rate limited: all bearer tokens exhausted")

// StatusError is a non-2xx response surfaced to the caller, carrying the
// parsed error body when one was available.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client performs rate-limit aware GET requests against the X API under the
// rotator's current credential.
//
// Retry policy: 429 records the reset hint and rotates immediately (no
// sleep), failing with ErrRateLimitExhausted once rotation is refused; 5xx
// and transport errors retry up to the configured budget with
// backoffFactor × attempt seconds between attempts; any other non-2xx fails
// immediately. Every attempt is appended to the audit trail before control
// returns, and audit failures never propagate.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	rotator       *Rotator
	trail         *Trail
	maxRetries    int
	backoffFactor float64
	clock         clockwork.Clock
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewClient creates a search API client from configuration.
func NewClient(cfg *config.Config, rotator *Rotator, trail *Trail, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: cfg.FetchTimeout},
		baseURL:       strings.TrimSuffix(cfg.TwitterBaseURL, "/"),
		rotator:       rotator,
		trail:         trail,
		maxRetries:    cfg.MaxRetries,
		backoffFactor: cfg.BackoffFactor,
		clock:         clockwork.NewRealClock(),
		metrics:       metrics,
		logger:        logger,
	}
}

// Get performs a GET against path with the given query parameters and
// returns the raw response body of the first successful attempt.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path + "?" + params.Encode()
	c.logger.Info("fetching", "url", c.baseURL+path, "query", params.Get("query"))

	attempt := 0
	for {
		attempt++

		start := c.clock.Now()
		status, body, resetHint, err := c.do(ctx, fullURL)
		duration := c.clock.Since(start)

		if err != nil {
			c.metrics.FetchAttempts.WithLabelValues("transport_error").Inc()
			c.trail.AppendHistory(AttemptRecord{
				Attempt:         attempt,
				Method:          http.MethodGet,
				URL:             fullURL,
				DurationSeconds: duration.Seconds(),
				Error:           err.Error(),
			})
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("request failed after %d attempts: %w", attempt, err)
			}
			c.logger.Warn("transport error, retrying", "attempt", attempt, "error", err)
			if !c.sleep(ctx, c.backoff(attempt)) {
				return nil, ctx.Err()
			}
			continue
		}

		rec := AttemptRecord{
			Attempt:         attempt,
			Method:          http.MethodGet,
			URL:             fullURL,
			StatusCode:      status,
			DurationSeconds: duration.Seconds(),
		}
		if status != http.StatusOK {
			rec.ResponseBody = string(body)
		}
		c.trail.AppendHistory(rec)

		switch {
		case status == http.StatusOK:
			c.metrics.FetchAttempts.WithLabelValues("success").Inc()
			c.metrics.FetchDuration.Observe(duration.Seconds())
			c.auditSuccess(attempt, fullURL, duration, body)
			return body, nil

		case status == http.StatusTooManyRequests:
			c.metrics.FetchAttempts.WithLabelValues("rate_limited").Inc()
			c.handleRateLimitHint(resetHint, body)
			if c.rotator.Rotate() {
				c.metrics.TokenRotations.Inc()
				c.logger.Info("switched bearer token, retrying immediately")
				continue
			}
			return nil, ErrRateLimitExhausted

		case status >= 500:
			c.metrics.FetchAttempts.WithLabelValues("server_error").Inc()
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("server error after %d attempts: %w", attempt,
					&StatusError{StatusCode: status, Body: string(body)})
			}
			c.logger.Warn("server error, retrying", "status", status, "attempt", attempt)
			if !c.sleep(ctx, c.backoff(attempt)) {
				return nil, ctx.Err()
			}
			continue

		default:
			c.metrics.FetchAttempts.WithLabelValues("client_error").Inc()
			return nil, &StatusError{StatusCode: status, Body: string(body)}
		}
	}
}

// do executes a single attempt and reads the body. The x-rate-limit-reset
// header is returned alongside so the retry loop can record it;
// transport-level failures return a non-nil error.
func (c *Client) do(ctx context.Context, fullURL string) (int, []byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.rotator.Current())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, "", fmt.Errorf("read response body: %w", err)
	}

	return resp.StatusCode, body, resp.Header.Get("x-rate-limit-reset"), nil
}

// auditSuccess records the winning attempt in the success log, counting the
// results in the response body's data array.
func (c *Client) auditSuccess(attempt int, fullURL string, duration time.Duration, body []byte) {
	var decoded struct {
		Data []json.RawMessage `json:"data"`
		Meta json.RawMessage   `json:"meta"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.Warn("success audit: response body not decodable", "error", err)
	}
	c.trail.AppendSuccess(SuccessRecord{
		Attempt:         attempt,
		URL:             fullURL,
		StatusCode:      http.StatusOK,
		DurationSeconds: duration.Seconds(),
		ResultCount:     len(decoded.Data),
		Meta:            decoded.Meta,
	})
}

// handleRateLimitHint records the reset time against the current credential
// when the 429 response carried a usable x-rate-limit-reset header.
func (c *Client) handleRateLimitHint(reset string, body []byte) {
	if reset == "" {
		c.logger.Warn("rate limited without reset hint", "body", string(body))
		return
	}
	sec, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		c.logger.Warn("unparseable rate limit reset header", "value", reset)
		return
	}
	resetAt := time.Unix(sec, 0).UTC()
	wait := resetAt.Sub(c.clock.Now())
	c.logger.Warn("rate limited", "reset", resetAt, "wait", wait)
	c.rotator.RecordRateLimit(resetAt)
}

// backoff computes the delay before the next retry attempt.
func (c *Client) backoff(attempt int) time.Duration {
	return time.Duration(c.backoffFactor * float64(attempt) * float64(time.Second))
}

// sleep waits for d or until the context is cancelled. Returns false on
// cancellation.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return true
	}
}
