// Package config loads and validates client configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the access layer.
type Config struct {
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Breaker     BreakerConfig     `yaml:"breaker"`
	Cache       CacheConfig       `yaml:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Stream      StreamConfig      `yaml:"stream"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// APIConfig holds REST endpoint settings.
type APIConfig struct {
	RestURL           string        `yaml:"rest_url"`
	FuturesURL        string        `yaml:"futures_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RecvWindow        time.Duration `yaml:"recv_window"`
	WeightLimit       int           `yaml:"weight_limit"`
}

// CredentialsConfig holds API credentials. Values are passed through
// os.ExpandEnv so secrets can live in the environment rather than on disk.
type CredentialsConfig struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// CacheConfig holds response cache settings. Backend is "memory" or "redis".
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxSize    int           `yaml:"max_size"`
	Backend    string        `yaml:"backend"`
	RedisAddr  string        `yaml:"redis_addr"`
	RedisDB    int           `yaml:"redis_db"`
	SweepEvery time.Duration `yaml:"sweep_every"`
}

// ConcurrencyConfig sizes the per-priority permit pools. Zero Low
// defaults to half of Normal.
type ConcurrencyConfig struct {
	High   int64 `yaml:"high"`
	Normal int64 `yaml:"normal"`
	Low    int64 `yaml:"low"`
}

// StreamConfig holds WebSocket settings.
type StreamConfig struct {
	URL            string        `yaml:"url"`
	FuturesURL     string        `yaml:"futures_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// Load reads, expands, defaults and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.Credentials.APIKey = os.ExpandEnv(cfg.Credentials.APIKey)
	cfg.Credentials.SecretKey = os.ExpandEnv(cfg.Credentials.SecretKey)

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
