// Package cache provides a TTL response cache with bounded size and
// batch oldest-first eviction.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// Cache is the store the request pipeline reads and writes. A key maps
// to an opaque response payload.
type Cache interface {
	// Get returns the payload for key, or false on miss or expiry.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores payload under key for ttl. A ttl <= 0 is a no-op.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)

	// Invalidate removes key if present.
	Invalidate(ctx context.Context, key string)

	// Stats returns cumulative counters.
	Stats() Stats

	// Close releases background resources.
	Close() error
}

// Stats holds cumulative cache counters.
type Stats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRatio returns hits over total lookups, or 0 with no lookups.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Key builds the deterministic cache key for a logical call: the
// method, host, path, sorted logical params and a TTL-sized time
// bucket. Signed values (timestamp, signature, recvWindow) must never
// reach this function; the pipeline keys on logical params only so a
// signed request and its logical twin share an entry.
func Key(method, host, path string, params url.Values, now time.Time, ttl time.Duration) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(host))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write([]byte(params.Encode()))
	h.Write([]byte{'\n'})
	if ttl > 0 {
		bucket := now.UnixMilli() / ttl.Milliseconds()
		h.Write([]byte(strconv.FormatInt(bucket, 10)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
