package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Store is the in-memory Cache. All mutations run under one exclusive
// lock; a background sweep removes expired entries independent of
// access so an idle cache does not pin stale payloads.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxSize int

	hits      int64
	misses    int64
	evictions int64

	clock     clock.Clock
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type entry struct {
	payload   []byte
	storedAt  time.Time
	expiresAt time.Time
}

// NewStore creates a Store bounded to maxSize entries. sweepEvery <= 0
// disables the background sweep.
func NewStore(maxSize int, sweepEvery time.Duration, clk clock.Clock) *Store {
	if maxSize < 1 {
		maxSize = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	s := &Store{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		clock:   clk,
		done:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		s.wg.Add(1)
		go s.sweepLoop(sweepEvery)
	}
	return s
}

// Get returns the payload for key. Expired entries are removed and
// reported as misses.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if s.clock.Now().After(e.expiresAt) {
		delete(s.entries, key)
		s.misses++
		return nil, false
	}
	s.hits++
	return e.payload, true
}

// Set stores payload under key for ttl, evicting the oldest tenth of
// the store first when full.
func (s *Store) Set(_ context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxSize {
		s.evictOldestLocked()
	}

	now := s.clock.Now()
	s.entries[key] = &entry{
		payload:   payload,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
}

// Invalidate removes key if present.
func (s *Store) Invalidate(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Stats returns cumulative counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Size:      len(s.entries),
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
}

// Close stops the background sweep. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

// evictOldestLocked removes the oldest tenth of resident entries,
// at least one. Batching amortizes the scan over many inserts.
func (s *Store) evictOldestLocked() {
	batch := s.maxSize / 10
	if batch < 1 {
		batch = 1
	}

	type aged struct {
		key      string
		storedAt time.Time
	}
	all := make([]aged, 0, len(s.entries))
	for k, e := range s.entries {
		all = append(all, aged{key: k, storedAt: e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt.Before(all[j].storedAt) })

	if batch > len(all) {
		batch = len(all)
	}
	for _, a := range all[:batch] {
		delete(s.entries, a.key)
		s.evictions++
	}
}

func (s *Store) sweepLoop(every time.Duration) {
	defer s.wg.Done()
	ticker := s.clock.Ticker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
