package cache

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("set then get", func(t *testing.T) {
		s := NewStore(10, 0, clock.NewMock())
		defer s.Close()

		s.Set(ctx, "k", []byte(`{"price":"1"}`), time.Minute)
		got, ok := s.Get(ctx, "k")
		if !ok {
			t.Fatal("Get() miss after Set()")
		}
		if string(got) != `{"price":"1"}` {
			t.Errorf("Get() = %s", got)
		}
	})

	t.Run("expired entry is a miss", func(t *testing.T) {
		mock := clock.NewMock()
		s := NewStore(10, 0, mock)
		defer s.Close()

		s.Set(ctx, "k", []byte("v"), time.Minute)
		mock.Add(time.Minute + time.Second)

		if _, ok := s.Get(ctx, "k"); ok {
			t.Error("Get() should miss after TTL elapses")
		}
		if st := s.Stats(); st.Misses != 1 {
			t.Errorf("Misses = %d, want 1", st.Misses)
		}
	})

	t.Run("zero ttl disables caching", func(t *testing.T) {
		s := NewStore(10, 0, clock.NewMock())
		defer s.Close()

		s.Set(ctx, "k", []byte("v"), 0)
		if _, ok := s.Get(ctx, "k"); ok {
			t.Error("Set() with ttl 0 should not store")
		}
	})

	t.Run("size never exceeds max", func(t *testing.T) {
		mock := clock.NewMock()
		s := NewStore(20, 0, mock)
		defer s.Close()

		for i := 0; i < 100; i++ {
			mock.Add(time.Millisecond)
			s.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Hour)
			if size := s.Stats().Size; size > 20 {
				t.Fatalf("size = %d after insert %d, want <= 20", size, i)
			}
		}
		if st := s.Stats(); st.Evictions == 0 {
			t.Error("expected evictions after overflow")
		}
	})

	t.Run("eviction removes oldest batch first", func(t *testing.T) {
		mock := clock.NewMock()
		s := NewStore(10, 0, mock)
		defer s.Close()

		for i := 0; i < 10; i++ {
			mock.Add(time.Millisecond)
			s.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Hour)
		}
		mock.Add(time.Millisecond)
		s.Set(ctx, "overflow", []byte("v"), time.Hour)

		if _, ok := s.Get(ctx, "k0"); ok {
			t.Error("oldest entry should be evicted first")
		}
		if _, ok := s.Get(ctx, "k9"); !ok {
			t.Error("newest entry should survive eviction")
		}
		if _, ok := s.Get(ctx, "overflow"); !ok {
			t.Error("inserted entry should be resident")
		}
	})

	t.Run("sweep removes expired entries without access", func(t *testing.T) {
		mock := clock.NewMock()
		s := NewStore(10, time.Second, mock)
		defer s.Close()

		s.Set(ctx, "short", []byte("v"), 10*time.Millisecond)
		s.Set(ctx, "long", []byte("v"), time.Hour)

		mock.Add(2 * time.Second)
		// The ticker fires on the mock clock; give the sweep goroutine a turn.
		deadline := time.Now().Add(time.Second)
		for s.Stats().Size != 1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if size := s.Stats().Size; size != 1 {
			t.Errorf("size = %d after sweep, want 1", size)
		}
	})

	t.Run("invalidate removes entry", func(t *testing.T) {
		s := NewStore(10, 0, clock.NewMock())
		defer s.Close()

		s.Set(ctx, "k", []byte("v"), time.Hour)
		s.Invalidate(ctx, "k")
		if _, ok := s.Get(ctx, "k"); ok {
			t.Error("Get() should miss after Invalidate()")
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		s := NewStore(10, time.Second, clock.NewMock())
		if err := s.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := s.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
	})

	t.Run("hit ratio", func(t *testing.T) {
		s := NewStore(10, 0, clock.NewMock())
		defer s.Close()

		s.Set(ctx, "k", []byte("v"), time.Hour)
		s.Get(ctx, "k")
		s.Get(ctx, "absent")

		if ratio := s.Stats().HitRatio(); ratio != 0.5 {
			t.Errorf("HitRatio() = %v, want 0.5", ratio)
		}
	})
}

func TestKey(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	params := url.Values{"symbol": {"BTCUSDT"}, "limit": {"5"}}

	t.Run("deterministic for equal logical params", func(t *testing.T) {
		a := Key("GET", "api.binance.com", "/api/v3/depth", params, now, time.Minute)
		b := Key("GET", "api.binance.com", "/api/v3/depth", url.Values{"limit": {"5"}, "symbol": {"BTCUSDT"}}, now, time.Minute)
		if a != b {
			t.Error("keys differ for identical logical params")
		}
	})

	t.Run("differs across params, path and bucket", func(t *testing.T) {
		base := Key("GET", "h", "/p", params, now, time.Minute)
		if base == Key("GET", "h", "/p", url.Values{"symbol": {"ETHUSDT"}}, now, time.Minute) {
			t.Error("key should depend on params")
		}
		if base == Key("GET", "h", "/other", params, now, time.Minute) {
			t.Error("key should depend on path")
		}
		if base == Key("GET", "h", "/p", params, now.Add(2*time.Minute), time.Minute) {
			t.Error("key should depend on the time bucket")
		}
	})
}
