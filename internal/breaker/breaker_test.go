package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

var errBoom = errors.New("boom")

func TestBreaker(t *testing.T) {
	t.Run("opens after consecutive failures", func(t *testing.T) {
		b := New(3, time.Minute, clock.NewMock())

		for i := 0; i < 3; i++ {
			if err := b.Allow(); err != nil {
				t.Fatalf("Allow() #%d error = %v", i, err)
			}
			b.RecordFailure()
		}

		err := b.Allow()
		var openErr *OpenError
		if !errors.As(err, &openErr) {
			t.Fatalf("Allow() error = %v, want OpenError", err)
		}
		if openErr.Remaining <= 0 || openErr.Remaining > time.Minute {
			t.Errorf("Remaining = %v, want in (0, 1m]", openErr.Remaining)
		}
	})

	t.Run("success resets the failure streak", func(t *testing.T) {
		b := New(3, time.Minute, clock.NewMock())

		b.RecordFailure()
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		b.RecordFailure()

		if err := b.Allow(); err != nil {
			t.Errorf("Allow() error = %v, non-consecutive failures must not open", err)
		}
	})

	t.Run("half open after reset timeout", func(t *testing.T) {
		mock := clock.NewMock()
		b := New(2, time.Minute, mock)

		b.RecordFailure()
		b.RecordFailure()
		if err := b.Allow(); err == nil {
			t.Fatal("breaker should be open")
		}

		mock.Add(time.Minute + time.Second)
		if err := b.Allow(); err != nil {
			t.Fatalf("Allow() after reset timeout error = %v", err)
		}
		if st := b.Status(); st.State != StateHalfOpen {
			t.Errorf("state = %v, want half_open", st.State)
		}
	})

	t.Run("half open failure reopens immediately", func(t *testing.T) {
		mock := clock.NewMock()
		b := New(2, time.Minute, mock)

		b.RecordFailure()
		b.RecordFailure()
		mock.Add(time.Minute + time.Second)
		if err := b.Allow(); err != nil {
			t.Fatalf("Allow() error = %v", err)
		}

		b.RecordFailure()
		if err := b.Allow(); err == nil {
			t.Error("single half-open failure should reopen the breaker")
		}
	})

	t.Run("half open closes after ceil(threshold/2) successes", func(t *testing.T) {
		mock := clock.NewMock()
		b := New(5, time.Minute, mock) // needs 3 successes

		for i := 0; i < 5; i++ {
			b.RecordFailure()
		}
		mock.Add(time.Minute + time.Second)
		if err := b.Allow(); err != nil {
			t.Fatalf("Allow() error = %v", err)
		}

		b.RecordSuccess()
		b.RecordSuccess()
		if st := b.Status(); st.State != StateHalfOpen {
			t.Fatalf("state = %v after 2 successes, want half_open", st.State)
		}
		b.RecordSuccess()
		if st := b.Status(); st.State != StateClosed {
			t.Errorf("state = %v after 3 successes, want closed", st.State)
		}
	})

	t.Run("execute propagates the operation error", func(t *testing.T) {
		b := New(3, time.Minute, clock.NewMock())

		if err := b.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Errorf("Execute() error = %v, want errBoom", err)
		}
		if st := b.Status(); st.FailureCount != 1 {
			t.Errorf("FailureCount = %d, want 1", st.FailureCount)
		}
		if err := b.Execute(func() error { return nil }); err != nil {
			t.Errorf("Execute() error = %v", err)
		}
	})

	t.Run("open breaker skips the operation", func(t *testing.T) {
		b := New(1, time.Minute, clock.NewMock())
		b.RecordFailure()

		called := false
		err := b.Execute(func() error { called = true; return nil })
		if err == nil {
			t.Fatal("Execute() should fail while open")
		}
		if called {
			t.Error("operation must not run while the breaker is open")
		}
	})
}

func TestWithFallback(t *testing.T) {
	t.Run("fallback runs on rejection", func(t *testing.T) {
		b := New(1, time.Minute, clock.NewMock())
		b.RecordFailure()

		usedFallback := false
		w := NewWithFallback(b, func(err error) error {
			usedFallback = true
			var openErr *OpenError
			if !errors.As(err, &openErr) {
				t.Errorf("fallback error = %v, want OpenError", err)
			}
			return nil
		})

		if err := w.Execute(func() error { return nil }); err != nil {
			t.Errorf("Execute() error = %v", err)
		}
		if !usedFallback {
			t.Error("fallback should run when the breaker rejects")
		}
	})

	t.Run("no fallback passes error through", func(t *testing.T) {
		b := New(3, time.Minute, clock.NewMock())
		w := NewWithFallback(b, nil)
		if err := w.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Errorf("Execute() error = %v, want errBoom", err)
		}
	})
}
