package config

import (
	"errors"
	"fmt"
)

// Validate checks that all values are internally consistent.
func (c *Config) Validate() error {
	if c.API.RequestsPerSecond <= 0 {
		return errors.New("api.requests_per_second must be > 0")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.WeightLimit < 1 {
		return errors.New("api.weight_limit must be >= 1")
	}

	if c.Credentials.APIKey == "" && c.Credentials.SecretKey != "" {
		return errors.New("credentials.api_key is required when secret_key is set")
	}

	if c.Breaker.FailureThreshold < 1 {
		return errors.New("breaker.failure_threshold must be >= 1")
	}
	if c.Breaker.ResetTimeout <= 0 {
		return errors.New("breaker.reset_timeout must be > 0")
	}

	if c.Cache.MaxSize < 1 {
		return errors.New("cache.max_size must be >= 1")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}

	if c.Concurrency.High < 1 || c.Concurrency.Normal < 1 || c.Concurrency.Low < 1 {
		return errors.New("concurrency pool sizes must be >= 1")
	}

	if c.Stream.ReconnectDelay <= 0 {
		return errors.New("stream.reconnect_delay must be > 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}
