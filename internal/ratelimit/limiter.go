// Package ratelimit paces outgoing requests and bounds concurrency
// per traffic class.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits at most one request per minimum interval. Admissions
// are FIFO and the check-and-record step is atomic inside rate.Limiter,
// so concurrent callers cannot race past the spacing guarantee.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a Limiter from a requests-per-second ceiling.
func NewLimiter(requestsPerSecond float64) *Limiter {
	interval := time.Duration(float64(time.Second) / requestsPerSecond)
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Wait blocks until the caller is admitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
