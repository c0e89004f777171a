package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Priority selects the permit pool a request draws from.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

// String returns the lowercase pool name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Gate bounds in-flight requests with three disjoint permit pools, so a
// saturated low-priority pool never starves high-priority callers.
type Gate struct {
	high   *semaphore.Weighted
	normal *semaphore.Weighted
	low    *semaphore.Weighted
}

// NewGate creates a Gate with the given pool sizes. A zero or negative
// low size defaults to half of normal, minimum one permit.
func NewGate(high, normal, low int64) *Gate {
	if high < 1 {
		high = 1
	}
	if normal < 1 {
		normal = 1
	}
	if low < 1 {
		low = normal / 2
		if low < 1 {
			low = 1
		}
	}
	return &Gate{
		high:   semaphore.NewWeighted(high),
		normal: semaphore.NewWeighted(normal),
		low:    semaphore.NewWeighted(low),
	}
}

// Acquire blocks until a permit in the priority's pool frees or ctx is
// done. Every successful Acquire must be paired with Release.
func (g *Gate) Acquire(ctx context.Context, p Priority) error {
	pool, err := g.pool(p)
	if err != nil {
		return err
	}
	return pool.Acquire(ctx, 1)
}

// Release returns a permit to the priority's pool.
func (g *Gate) Release(p Priority) {
	pool, err := g.pool(p)
	if err != nil {
		return
	}
	pool.Release(1)
}

func (g *Gate) pool(p Priority) (*semaphore.Weighted, error) {
	switch p {
	case PriorityHigh:
		return g.high, nil
	case PriorityNormal:
		return g.normal, nil
	case PriorityLow:
		return g.low, nil
	default:
		return nil, fmt.Errorf("unknown priority %d", p)
	}
}
