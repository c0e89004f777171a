// Package binance is the facade collaborators talk to: domain methods
// composed over the request pipeline and the stream manager. Construct
// one Client at the composition root and pass it around; there is no
// package-level instance.
package binance

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/iskelet/bxgate/internal/auth"
	"github.com/iskelet/bxgate/internal/breaker"
	"github.com/iskelet/bxgate/internal/cache"
	"github.com/iskelet/bxgate/internal/config"
	"github.com/iskelet/bxgate/internal/metrics"
	"github.com/iskelet/bxgate/internal/ratelimit"
	"github.com/iskelet/bxgate/internal/stream"
	"github.com/iskelet/bxgate/internal/transport"
)

// Client exposes the exchange to the rest of the application.
type Client struct {
	rest    *transport.Client
	spot    *stream.Manager
	futures *stream.Manager
	store   cache.Cache
	logger  *slog.Logger
	clock   clock.Clock

	cacheTTL time.Duration

	done chan struct{}
}

// New wires the full access layer from configuration: signer, limiter,
// gate, breaker, cache, pipeline and the two stream managers.
func New(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	var creds *auth.Credentials
	if cfg.Credentials.APIKey != "" {
		creds = &auth.Credentials{
			APIKey:    cfg.Credentials.APIKey,
			SecretKey: cfg.Credentials.SecretKey,
		}
	}
	signer := auth.NewSigner(creds, cfg.API.RecvWindow, nil)

	var store cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		store = cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisDB, "", logger)
	default:
		store = cache.NewStore(cfg.Cache.MaxSize, cfg.Cache.SweepEvery, nil)
	}

	rest := transport.NewClient(cfg.API.RestURL,
		transport.WithFuturesURL(cfg.API.FuturesURL),
		transport.WithSigner(signer),
		transport.WithLimiter(ratelimit.NewLimiter(cfg.API.RequestsPerSecond)),
		transport.WithGate(ratelimit.NewGate(cfg.Concurrency.High, cfg.Concurrency.Normal, cfg.Concurrency.Low)),
		transport.WithBreaker(breaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout, nil)),
		transport.WithCache(store),
		transport.WithMetrics(collector),
		transport.WithRetries(cfg.API.MaxRetries, time.Second),
		transport.WithTimeout(cfg.API.Timeout),
		transport.WithWeightLimit(cfg.API.WeightLimit),
		transport.WithLogger(logger),
	)

	header := http.Header{}
	if signer.APIKey() != "" {
		header.Set(auth.HeaderAPIKey, signer.APIKey())
	}
	streamCfg := func(url string) stream.ManagerConfig {
		return stream.ManagerConfig{
			URL:            url,
			Header:         header,
			ReconnectDelay: cfg.Stream.ReconnectDelay,
			ReadTimeout:    cfg.Stream.ReadTimeout,
			PingInterval:   cfg.Stream.PingInterval,
		}
	}

	return &Client{
		rest:     rest,
		spot:     stream.NewManager(streamCfg(cfg.Stream.URL), logger, collector),
		futures:  stream.NewManager(streamCfg(cfg.Stream.FuturesURL), logger, collector),
		store:    store,
		logger:   logger,
		clock:    clock.New(),
		cacheTTL: cfg.Cache.TTL,
		done:     make(chan struct{}),
	}
}

// Close stops stream loops, background keepalives and the cache.
func (c *Client) Close(ctx context.Context) error {
	close(c.done)

	var firstErr error
	if err := c.spot.CloseAll(ctx); err != nil {
		firstErr = err
	}
	if err := c.futures.CloseAll(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// BreakerStatus exposes the pipeline breaker snapshot.
func (c *Client) BreakerStatus() breaker.Status {
	return c.rest.BreakerStatus()
}

// CacheStats exposes the response cache counters.
func (c *Client) CacheStats() cache.Stats {
	return c.rest.CacheStats()
}

// WeightUsage returns the request weight consumed this minute.
func (c *Client) WeightUsage() int {
	return c.rest.WeightUsage()
}

// WeightRemaining returns the request weight left this minute.
func (c *Client) WeightRemaining() int {
	return c.rest.WeightRemaining()
}
