// Package breaker implements a circuit breaker gating calls by recent
// failure history.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the conventional state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// OpenError is returned when a call is fast-rejected by an open breaker.
type OpenError struct {
	Remaining time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open, retry in %.1fs", e.Remaining.Seconds())
}

// Status is an observability snapshot of the breaker.
type Status struct {
	State            State
	FailureCount     int
	TimeSinceFailure time.Duration
}

// Breaker transitions CLOSED -> OPEN on consecutive failures, OPEN ->
// HALF_OPEN after the reset timeout, and HALF_OPEN -> CLOSED after
// ceil(threshold/2) consecutive successes. A single half-open failure
// reopens it. All transitions run under one mutex.
type Breaker struct {
	mu sync.Mutex

	state       State
	failures    int
	successes   int
	lastFailure time.Time

	failureThreshold int
	successThreshold int
	resetTimeout     time.Duration

	clock clock.Clock
}

// New creates a Breaker. Non-positive arguments fall back to a
// threshold of 5 failures and a 60s reset timeout.
func New(failureThreshold int, resetTimeout time.Duration, clk clock.Clock) *Breaker {
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 60 * time.Second
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		successThreshold: (failureThreshold + 1) / 2,
		resetTimeout:     resetTimeout,
		clock:            clk,
	}
}

// Allow reports whether a call may proceed, transitioning OPEN to
// HALF_OPEN once the reset timeout has elapsed. When rejected, the
// returned error carries the remaining open time.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		elapsed := b.clock.Now().Sub(b.lastFailure)
		if elapsed > b.resetTimeout {
			b.state = StateHalfOpen
			b.successes = 0
			return nil
		}
		return &OpenError{Remaining: b.resetTimeout - elapsed}
	default:
		return &OpenError{Remaining: b.resetTimeout}
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

// RecordFailure records a failed call. In HALF_OPEN a single failure
// reopens the breaker with no second chances.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.clock.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successes = 0
	}
}

// Execute runs op under the breaker: rejection first, then success or
// failure bookkeeping. The operation's own error is always returned
// unchanged, never swallowed.
func (b *Breaker) Execute(op func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := op(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Status returns an observability snapshot.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	var since time.Duration
	if !b.lastFailure.IsZero() {
		since = b.clock.Now().Sub(b.lastFailure)
	}
	return Status{
		State:            b.state,
		FailureCount:     b.failures,
		TimeSinceFailure: since,
	}
}
