// Package transport implements the request pipeline: cache
// short-circuit, rate limiting, priority concurrency, circuit
// breaking, signing, and the per-status retry taxonomy.
package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/iskelet/bxgate/internal/auth"
	"github.com/iskelet/bxgate/internal/breaker"
	"github.com/iskelet/bxgate/internal/cache"
	"github.com/iskelet/bxgate/internal/metrics"
	"github.com/iskelet/bxgate/internal/ratelimit"
)

// Client executes logical API calls against the exchange. One Client
// owns one breaker, one limiter, one gate and one cache; construct it
// at the composition root and hand the same instance to collaborators.
type Client struct {
	baseURL    string
	futuresURL string
	httpClient *http.Client
	logger     *slog.Logger

	signer  *auth.Signer
	limiter *ratelimit.Limiter
	gate    *ratelimit.Gate
	breaker *breaker.Breaker
	cache   cache.Cache
	metrics *metrics.Collector
	clock   clock.Clock

	maxRetries  int
	baseBackoff time.Duration

	weight      *weightTracker
	weightLimit int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a pipeline client for the given REST base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		futuresURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:      slog.Default(),
		clock:       clock.New(),
		maxRetries:  3,
		baseBackoff: time.Second,
		weightLimit: 1200,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.signer == nil {
		c.signer = auth.NewSigner(nil, 0, c.clock)
	}
	c.weight = newWeightTracker(c.clock)

	return c
}

// WithFuturesURL sets the alternate-host base URL.
func WithFuturesURL(url string) ClientOption {
	return func(c *Client) { c.futuresURL = url }
}

// WithSigner sets the request signer.
func WithSigner(s *auth.Signer) ClientOption {
	return func(c *Client) { c.signer = s }
}

// WithLimiter sets the interval rate limiter.
func WithLimiter(l *ratelimit.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithGate sets the priority concurrency gate.
func WithGate(g *ratelimit.Gate) ClientOption {
	return func(c *Client) { c.gate = g }
}

// WithBreaker sets the circuit breaker.
func WithBreaker(b *breaker.Breaker) ClientOption {
	return func(c *Client) { c.breaker = b }
}

// WithCache sets the response cache.
func WithCache(store cache.Cache) ClientOption {
	return func(c *Client) { c.cache = store }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithClock sets the clock used for backoff sleeps and cache keys.
func WithClock(clk clock.Clock) ClientOption {
	return func(c *Client) { c.clock = clk }
}

// WithRetries sets the retry ceiling and the backoff base unit. The
// delay before attempt n is base<<n, capped.
func WithRetries(max int, base time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		if base > 0 {
			c.baseBackoff = base
		}
	}
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithWeightLimit sets the exchange's per-minute weight budget.
func WithWeightLimit(limit int) ClientOption {
	return func(c *Client) { c.weightLimit = limit }
}

// BreakerStatus returns the breaker snapshot, or a zero Status when no
// breaker is wired.
func (c *Client) BreakerStatus() breaker.Status {
	if c.breaker == nil {
		return breaker.Status{}
	}
	return c.breaker.Status()
}

// CacheStats returns cache counters, or zero Stats without a cache.
func (c *Client) CacheStats() cache.Stats {
	if c.cache == nil {
		return cache.Stats{}
	}
	return c.cache.Stats()
}

// WeightUsage returns the weight consumed in the current minute.
func (c *Client) WeightUsage() int {
	return c.weight.usage()
}

// WeightRemaining returns the weight left in the current minute.
func (c *Client) WeightRemaining() int {
	remaining := c.weightLimit - c.weight.usage()
	if remaining < 0 {
		return 0
	}
	return remaining
}
