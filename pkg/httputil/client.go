package httputil

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lendops/tapekpi/pkg/logger"
)

// AuditRecorder receives audit events from the client (one http_retry
// event per retry attempt). The KPI pipeline's audit trail satisfies it.
type AuditRecorder interface {
	Record(event, status string, fields map[string]interface{})
}

// RetryConfig holds retry behavior for a single fetch.
type RetryConfig struct {
	MaxRetries int
	Backoff    time.Duration
}

// Client is an HTTP client wrapper guarding calls to the upstream loan-data
// provider with rate limiting, retry and circuit breaking. All outbound
// requests go through this client.
type Client struct {
	httpClient *http.Client
	log        *logger.Logger
	retry      RetryConfig
	limiter    *RateLimiter
	breaker    *CircuitBreaker
	audit      AuditRecorder
}

// New creates a client with the given request timeout. Retry, rate
// limiting, circuit breaking and audit are attached with the With* chain.
func New(log *logger.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		retry:      RetryConfig{MaxRetries: 3, Backoff: time.Second},
	}
}

// WithRetry configures retry behavior.
func (c *Client) WithRetry(maxRetries int, backoff time.Duration) *Client {
	c.retry = RetryConfig{MaxRetries: maxRetries, Backoff: backoff}
	return c
}

// WithRateLimiter sets the outbound rate limiter.
func (c *Client) WithRateLimiter(limiter *RateLimiter) *Client {
	c.limiter = limiter
	return c
}

// WithCircuitBreaker sets the circuit breaker.
func (c *Client) WithCircuitBreaker(breaker *CircuitBreaker) *Client {
	c.breaker = breaker
	return c
}

// WithAudit sets the audit recorder that receives http_retry events.
func (c *Client) WithAudit(audit AuditRecorder) *Client {
	c.audit = audit
	return c
}

// Get performs a rate-limited, circuit-broken, retried GET. When the
// circuit is open it returns ErrCircuitOpen immediately without any
// network attempt. Transient network errors and retryable status codes
// (5xx, 429) are retried up to MaxRetries with a fixed backoff; definitive
// client errors are not.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			c.log.WithField("url", url).Warn("circuit open, failing fast")
			return nil, err
		}
	}

	start := time.Now()
	resp, err := c.doWithRetry(ctx, url)
	duration := time.Since(start)

	if err != nil {
		if c.breaker != nil {
			c.breaker.RecordFailure()
		}
		c.log.WithFields(map[string]interface{}{
			"url":      url,
			"duration": duration.String(),
			"error":    err.Error(),
		}).Error("HTTP request failed")
		return nil, err
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
	c.log.WithFields(map[string]interface{}{
		"url":         url,
		"status_code": resp.StatusCode,
		"duration":    duration.String(),
	}).Debug("HTTP request completed")

	return resp, nil
}

// doWithRetry executes the GET with up to MaxRetries additional attempts.
func (c *Client) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			c.recordRetry(url, attempt, lastErr)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retry.Backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create GET request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		resp.Body.Close()
		if !IsRetryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("upstream returned status %d for %s", resp.StatusCode, url)
		}
		lastErr = fmt.Errorf("upstream returned status %d for %s", resp.StatusCode, url)
	}

	return nil, fmt.Errorf("exhausted %d retries: %w", c.retry.MaxRetries, lastErr)
}

func (c *Client) recordRetry(url string, attempt int, cause error) {
	fields := map[string]interface{}{
		"url":     url,
		"attempt": attempt,
		"backoff": c.retry.Backoff.String(),
	}
	if cause != nil {
		fields["cause"] = cause.Error()
	}
	c.log.WithFields(fields).Warn("retrying HTTP request")
	if c.audit != nil {
		c.audit.Record("http_retry", "failure", fields)
	}
}

// IsRetryableStatus reports whether a status code warrants a retry:
// 5xx server errors and 429 Too Many Requests.
func IsRetryableStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
