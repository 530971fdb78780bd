// Package ttlcache provides the single-value, time-bounded slot behind the identity
// and role caches.
package ttlcache

import (
	"context"
	"sync"
	"time"
)

// Slot memoizes one value for a fixed TTL. Misses are serialized: concurrent callers
// that find the slot stale wait for a single refresh instead of each fetching.
type Slot[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	value    T
	cachedAt time.Time
	filled   bool
	// gen advances on every Set and Clear. A fetch stores its result only if gen
	// has not moved since the fetch started.
	gen uint64

	// refresh serializes fetches; it is always acquired before mu.
	refresh sync.Mutex
}

// New returns an empty slot. A nil clock selects time.Now.
func New[T any](ttl time.Duration, now func() time.Time) *Slot[T] {
	if now == nil {
		now = time.Now
	}
	return &Slot[T]{ttl: ttl, now: now}
}

// Peek returns the cached value and whether it is still fresh.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.freshLocked()
}

// Get returns the fresh cached value, or calls fetch and caches its result.
// A fetch error leaves the slot unchanged.
func (s *Slot[T]) Get(ctx context.Context, fetch func(context.Context) (T, error)) (T, error) {
	return s.GetIf(ctx, nil, fetch)
}

// GetIf is Get with an extra acceptance check: a fresh value for which keep returns
// false is treated as a miss.
//
// A Set or Clear that lands while fetch runs wins: the fetched value is returned to
// this caller but not cached.
func (s *Slot[T]) GetIf(ctx context.Context, keep func(T) bool, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := s.Peek(); ok && (keep == nil || keep(v)) {
		return v, nil
	}

	s.refresh.Lock()
	defer s.refresh.Unlock()

	if v, ok := s.Peek(); ok && (keep == nil || keep(v)) {
		return v, nil
	}

	gen := s.generation()
	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.setIf(gen, v)
	return v, nil
}

func (s *Slot[T]) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Slot[T]) setIf(gen uint64, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.storeLocked(v)
}

// Set overwrites the slot and restarts its TTL.
func (s *Slot[T]) Set(v T) {
	s.mu.Lock()
	s.storeLocked(v)
	s.mu.Unlock()
}

func (s *Slot[T]) storeLocked(v T) {
	s.value = v
	s.cachedAt = s.now()
	s.filled = true
	s.gen++
}

// Clear empties the slot so the next Get fetches.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	var zero T
	s.value = zero
	s.cachedAt = time.Time{}
	s.filled = false
	s.gen++
	s.mu.Unlock()
}

// TTL returns the slot lifetime.
func (s *Slot[T]) TTL() time.Duration {
	return s.ttl
}

func (s *Slot[T]) freshLocked() bool {
	return s.filled && s.now().Sub(s.cachedAt) < s.ttl
}
