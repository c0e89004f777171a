package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	t.Run("admissions spaced by minimum interval", func(t *testing.T) {
		const (
			n        = 5
			interval = 20 * time.Millisecond
		)
		l := NewLimiter(float64(time.Second) / float64(interval))

		var (
			mu    sync.Mutex
			times []time.Time
			wg    sync.WaitGroup
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := l.Wait(context.Background()); err != nil {
					t.Errorf("Wait() error = %v", err)
					return
				}
				mu.Lock()
				times = append(times, time.Now())
				mu.Unlock()
			}()
		}
		wg.Wait()

		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		for i := 1; i < len(times); i++ {
			gap := times[i].Sub(times[i-1])
			// Allow a small scheduling slack below the nominal interval.
			if gap < interval-5*time.Millisecond {
				t.Errorf("admissions %d and %d spaced %v, want >= %v", i-1, i, gap, interval)
			}
		}
	})

	t.Run("cancelled wait returns error", func(t *testing.T) {
		l := NewLimiter(1) // one per second
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("first Wait() error = %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := l.Wait(ctx); err == nil {
			t.Error("Wait() with expired context should fail")
		}
	})
}

func TestGate(t *testing.T) {
	t.Run("excess acquires block until release", func(t *testing.T) {
		g := NewGate(1, 1, 1)
		ctx := context.Background()

		if err := g.Acquire(ctx, PriorityNormal); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}

		blocked := make(chan struct{})
		go func() {
			if err := g.Acquire(ctx, PriorityNormal); err != nil {
				t.Errorf("second Acquire() error = %v", err)
			}
			close(blocked)
		}()

		select {
		case <-blocked:
			t.Fatal("second acquire should block while pool is full")
		case <-time.After(30 * time.Millisecond):
		}

		g.Release(PriorityNormal)
		select {
		case <-blocked:
		case <-time.After(time.Second):
			t.Fatal("second acquire should proceed after release")
		}
		g.Release(PriorityNormal)
	})

	t.Run("low exhaustion does not block high", func(t *testing.T) {
		g := NewGate(2, 2, 1)
		ctx := context.Background()

		if err := g.Acquire(ctx, PriorityLow); err != nil {
			t.Fatalf("Acquire(low) error = %v", err)
		}
		defer g.Release(PriorityLow)

		done := make(chan error, 1)
		go func() {
			done <- g.Acquire(ctx, PriorityHigh)
		}()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Acquire(high) error = %v", err)
			}
			g.Release(PriorityHigh)
		case <-time.After(time.Second):
			t.Fatal("high acquire blocked by exhausted low pool")
		}
	})

	t.Run("low defaults to half of normal", func(t *testing.T) {
		g := NewGate(4, 4, 0)
		ctx := context.Background()

		// Two permits available, a third must block.
		for i := 0; i < 2; i++ {
			if err := g.Acquire(ctx, PriorityLow); err != nil {
				t.Fatalf("Acquire(low) #%d error = %v", i, err)
			}
		}
		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()
		if err := g.Acquire(waitCtx, PriorityLow); err == nil {
			t.Error("third low acquire should block with pool size 2")
		}
	})

	t.Run("cancelled acquire leaves pool intact", func(t *testing.T) {
		g := NewGate(1, 1, 1)
		ctx := context.Background()

		if err := g.Acquire(ctx, PriorityHigh); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}

		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		if err := g.Acquire(waitCtx, PriorityHigh); err == nil {
			t.Fatal("acquire should fail on cancelled context")
		}

		g.Release(PriorityHigh)
		if err := g.Acquire(ctx, PriorityHigh); err != nil {
			t.Errorf("pool permit lost after cancelled acquire: %v", err)
		}
		g.Release(PriorityHigh)
	})
}
