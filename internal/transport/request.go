package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iskelet/bxgate/internal/auth"
	"github.com/iskelet/bxgate/internal/cache"
	"github.com/iskelet/bxgate/internal/ratelimit"
)

// Backoff caps per failure class, scaled from one-second base units.
const (
	backoffCapServer   = 30 * time.Second
	backoffCapThrottle = 60 * time.Second
	maxBackoffShift    = 16
)

// NoRetries disables retries for a single request: one network attempt,
// win or lose.
const NoRetries = -1

// Request describes one logical call. It is immutable once built.
type Request struct {
	Method   string
	Path     string
	Params   url.Values
	Signed   bool
	Futures  bool
	Priority ratelimit.Priority

	// CacheTTL > 0 enables response caching for this call class;
	// zero disables it.
	CacheTTL time.Duration

	// MaxRetries overrides the client retry ceiling when positive.
	// NoRetries (or any negative value) forbids retries entirely.
	MaxRetries int
}

// Execute runs the full pipeline for one logical call and returns the
// parsed response body. Several network attempts may back one call;
// a cache hit makes zero.
func (c *Client) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	start := c.clock.Now()
	requestID := uuid.NewString()
	endpoint := req.Path
	if req.Params == nil {
		req.Params = url.Values{}
	}

	// Cache key covers logical params only; timestamp and signature
	// are injected after this point and never reach the key.
	var cacheKey string
	useCache := c.cache != nil && req.CacheTTL > 0
	if useCache {
		cacheKey = cache.Key(req.Method, c.host(req), req.Path, req.Params, start, req.CacheTTL)
		if payload, ok := c.cache.Get(ctx, cacheKey); ok {
			c.metrics.RecordCacheHit()
			c.logger.Debug("cache hit", "request_id", requestID, "endpoint", endpoint)
			return payload, nil
		}
		c.metrics.RecordCacheMiss()
	}

	if c.limiter != nil {
		waitStart := c.clock.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if c.clock.Now().Sub(waitStart) > time.Millisecond {
			c.metrics.RecordRateLimitWait()
		}
	}

	if c.gate != nil {
		if err := c.gate.Acquire(ctx, req.Priority); err != nil {
			return nil, fmt.Errorf("concurrency gate: %w", err)
		}
		defer c.gate.Release(req.Priority)
	}

	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			c.metrics.RecordError("circuit_open")
			c.logger.Warn("circuit open, rejecting call",
				"request_id", requestID, "endpoint", endpoint)
			return nil, err
		}
	}

	payload, status, err := c.attemptLoop(ctx, req, requestID)

	duration := c.clock.Now().Sub(start)
	c.metrics.RecordRequest(req.Method, endpoint, status, duration)
	if c.breaker != nil {
		c.metrics.SetBreakerState(int(c.breaker.Status().State))
	}

	if err != nil {
		return nil, err
	}

	if useCache {
		c.cache.Set(ctx, cacheKey, payload, req.CacheTTL)
		c.metrics.SetCacheSize(c.cache.Stats().Size)
	}
	return payload, nil
}

// attemptLoop issues network attempts with the per-status retry
// taxonomy and returns the final HTTP status alongside the payload
// (zero when no response arrived). Breaker bookkeeping happens exactly
// once per logical call: success on 200, failure on non-retryable 4xx
// or on exhaustion of a retryable class. 429 is expected throttling
// and never counts.
func (c *Client) attemptLoop(ctx context.Context, req Request, requestID string) (json.RawMessage, int, error) {
	maxRetries := c.maxRetries
	switch {
	case req.MaxRetries > 0:
		maxRetries = req.MaxRetries
	case req.MaxRetries < 0:
		maxRetries = 0
	}

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.RecordRetry(req.Method, req.Path)
		}

		status, body, header, err := c.attempt(ctx, req)

		if err != nil {
			if ctx.Err() != nil {
				// Cancellation commits no breaker or cache state.
				return nil, 0, ctx.Err()
			}
			var authErr *AuthenticationError
			if errors.As(err, &authErr) {
				// Local signing failure, not a server fault.
				c.metrics.RecordError("auth")
				return nil, 0, err
			}
			lastErr = err
			if attempt == maxRetries {
				c.recordFailure("network")
				return nil, 0, &RequestError{Message: "retries exhausted", Cause: lastErr}
			}
			delay := c.backoff(attempt, backoffCapServer)
			delay += time.Duration(rand.Int64N(int64(delay)/2 + 1))
			c.logger.Warn("network error, retrying",
				"request_id", requestID, "attempt", attempt, "backoff", delay, "error", err)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, 0, err
			}
			continue
		}

		c.weight.record(header)
		c.metrics.SetWeightUsed(c.weight.usage())
		lastStatus = status

		switch {
		case status == http.StatusOK:
			if !json.Valid(body) {
				c.recordFailure("decode")
				return nil, status, &RequestError{StatusCode: status, Message: "invalid JSON response"}
			}
			if c.breaker != nil {
				c.breaker.RecordSuccess()
			}
			return json.RawMessage(body), status, nil

		case status == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(header)
			_, msg := parseErrorBody(body)
			lastErr = &RateLimitError{StatusCode: status, RetryAfter: retryAfter, Message: msg}
			if attempt == maxRetries {
				c.metrics.RecordError("rate_limit")
				return nil, status, lastErr
			}
			delay := c.backoff(attempt, backoffCapThrottle) + retryAfter
			c.logger.Warn("throttled by server, retrying",
				"request_id", requestID, "attempt", attempt, "backoff", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, status, err
			}

		case status >= http.StatusInternalServerError:
			code, msg := parseErrorBody(body)
			lastErr = &RequestError{StatusCode: status, Code: code, Message: msg}
			if attempt == maxRetries {
				c.recordFailure("server")
				return nil, status, &RequestError{StatusCode: status, Code: code, Message: "retries exhausted: " + msg}
			}
			delay := c.backoff(attempt, backoffCapServer)
			c.logger.Warn("server error, retrying",
				"request_id", requestID, "attempt", attempt, "status", status, "backoff", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, status, err
			}

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			c.recordFailure("auth")
			_, msg := parseErrorBody(body)
			return nil, status, &AuthenticationError{Message: msg}

		default:
			// Remaining 4xx are caller faults, not worth a retry.
			c.recordFailure("request")
			code, msg := parseErrorBody(body)
			return nil, status, &RequestError{StatusCode: status, Code: code, Message: msg}
		}
	}

	return nil, lastStatus, lastErr
}

// attempt issues one HTTP request. Signing happens here so every retry
// carries a fresh timestamp.
func (c *Client) attempt(ctx context.Context, req Request) (int, []byte, http.Header, error) {
	var query string
	if req.Signed {
		signed, err := c.signer.Sign(req.Params)
		if err != nil {
			if errors.Is(err, auth.ErrMissingCredentials) {
				return 0, nil, nil, &AuthenticationError{Message: "credentials required", Cause: err}
			}
			return 0, nil, nil, err
		}
		query = signed
	} else {
		query = req.Params.Encode()
	}

	fullURL := c.host(req) + req.Path
	var body io.Reader
	if req.Method == http.MethodGet || req.Method == http.MethodDelete {
		if query != "" {
			fullURL += "?" + query
		}
	} else if query != "" {
		body = strings.NewReader(query)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if key := c.signer.APIKey(); key != "" {
		httpReq.Header.Set(auth.HeaderAPIKey, key)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, respBody, resp.Header, nil
}

func (c *Client) host(req Request) string {
	if req.Futures {
		return c.futuresURL
	}
	return c.baseURL
}

// backoff returns base<<attempt capped proportionally to the base
// unit, so tests on a short base keep the same shape.
func (c *Client) backoff(attempt int, ceiling time.Duration) time.Duration {
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	delay := c.baseBackoff << attempt
	scaledCap := time.Duration(int64(ceiling) / int64(time.Second) * int64(c.baseBackoff))
	if delay > scaledCap {
		delay = scaledCap
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := c.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) recordFailure(class string) {
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
	c.metrics.RecordError(class)
}

// parseRetryAfter reads the server's Retry-After header in seconds.
func parseRetryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
