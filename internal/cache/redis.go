package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Cache backed by a shared Redis instance, for deployments
// running several client processes against the same exchange account.
// Expiry is delegated to Redis TTLs; size and eviction are governed by
// the server's own maxmemory policy, so Stats reports size 0 and no
// evictions.
type Redis struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis creates a Redis cache on the given address and database.
func NewRedis(addr string, db int, prefix string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "bxgate:cache:"
	}
	return &Redis{
		rdb:    redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		prefix: prefix,
		logger: logger,
	}
}

// Get returns the payload for key. Backend errors degrade to a miss;
// a broken cache must not fail the request path.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	payload, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("redis cache get failed", "error", err)
		}
		r.misses.Add(1)
		return nil, false
	}
	r.hits.Add(1)
	return payload, true
}

// Set stores payload under key for ttl.
func (r *Redis) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := r.rdb.Set(ctx, r.prefix+key, payload, ttl).Err(); err != nil {
		r.logger.Warn("redis cache set failed", "error", err)
	}
}

// Invalidate removes key if present.
func (r *Redis) Invalidate(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		r.logger.Warn("redis cache del failed", "error", err)
	}
}

// Stats returns cumulative local counters.
func (r *Redis) Stats() Stats {
	return Stats{
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
	}
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
