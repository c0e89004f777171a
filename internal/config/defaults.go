package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL           = "https://api.binance.com"
	DefaultFuturesURL        = "https://fapi.binance.com"
	DefaultWSURL             = "wss://stream.binance.com:9443"
	DefaultFuturesWSURL      = "wss://fstream.binance.com"
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultRequestsPerSecond = 10.0
	DefaultRecvWindow        = 5 * time.Second
	DefaultWeightLimit       = 1200
	DefaultFailureThreshold  = 5
	DefaultResetTimeout      = 60 * time.Second
	DefaultCacheTTL          = 5 * time.Second
	DefaultCacheMaxSize      = 1000
	DefaultCacheBackend      = "memory"
	DefaultCacheSweepEvery   = 30 * time.Second
	DefaultHighConcurrency   = 10
	DefaultNormalConcurrency = 10
	DefaultReconnectDelay    = 5 * time.Second
	DefaultStreamReadTimeout = 60 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

func (c *Config) applyDefaults() {
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.FuturesURL == "" {
		c.API.FuturesURL = DefaultFuturesURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RequestsPerSecond == 0 {
		c.API.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.API.RecvWindow == 0 {
		c.API.RecvWindow = DefaultRecvWindow
	}
	if c.API.WeightLimit == 0 {
		c.API.WeightLimit = DefaultWeightLimit
	}

	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if c.Breaker.ResetTimeout == 0 {
		c.Breaker.ResetTimeout = DefaultResetTimeout
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = DefaultCacheMaxSize
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = DefaultCacheBackend
	}
	if c.Cache.SweepEvery == 0 {
		c.Cache.SweepEvery = DefaultCacheSweepEvery
	}

	if c.Concurrency.High == 0 {
		c.Concurrency.High = DefaultHighConcurrency
	}
	if c.Concurrency.Normal == 0 {
		c.Concurrency.Normal = DefaultNormalConcurrency
	}
	if c.Concurrency.Low == 0 {
		c.Concurrency.Low = c.Concurrency.Normal / 2
		if c.Concurrency.Low == 0 {
			c.Concurrency.Low = 1
		}
	}

	if c.Stream.URL == "" {
		c.Stream.URL = DefaultWSURL
	}
	if c.Stream.FuturesURL == "" {
		c.Stream.FuturesURL = DefaultFuturesWSURL
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = DefaultStreamReadTimeout
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
