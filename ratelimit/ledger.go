package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"
)

// Policy holds the ledger thresholds.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
	Block       time.Duration
}

// DefaultPolicy returns 5 attempts per 15 minute window and a 30 minute block.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
		Block:       30 * time.Minute,
	}
}

// Validate reports whether p can drive a Ledger.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return errors.New("ratelimit: MaxAttempts must be > 0")
	}
	if p.Window <= 0 {
		return errors.New("ratelimit: Window must be > 0")
	}
	if p.Block <= 0 {
		return errors.New("ratelimit: Block must be > 0")
	}
	return nil
}

// Ledger tracks attempt pressure per key and enforces the block.
type Ledger struct {
	store  Store
	policy Policy
	now    Clock
}

// NewLedger creates a Ledger over store. A nil store selects a fresh MemoryStore and
// a nil clock selects time.Now.
func NewLedger(store Store, policy Policy, now Clock) *Ledger {
	if store == nil {
		store = NewMemoryStore()
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, policy: policy, now: now}
}

// Policy returns the thresholds the ledger enforces.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// IsBlocked reports whether key is inside an active block. Expired entries found
// along the way are deleted.
func (l *Ledger) IsBlocked(ctx context.Context, key string) (bool, error) {
	now := l.now()

	var blocked bool
	err := l.store.Update(ctx, key, func(cur *Entry) *Entry {
		blocked = false
		if cur == nil {
			return nil
		}
		if cur.Expired(now, l.policy.Window) {
			return nil
		}
		blocked = cur.Blocked(now)
		return cur
	})
	if err != nil {
		return false, err
	}
	return blocked, nil
}

// RecordAttempt reports whether the caller may try again and records the attempt.
// A blocked key is rejected without touching its counter.
func (l *Ledger) RecordAttempt(ctx context.Context, key string) (bool, error) {
	now := l.now()

	var allowed bool
	err := l.store.Update(ctx, key, func(cur *Entry) *Entry {
		allowed = false
		if cur != nil && cur.Expired(now, l.policy.Window) {
			cur = nil
		}
		if cur == nil {
			allowed = true
			return &Entry{Attempts: 1, FirstAttemptAt: now}
		}
		if cur.Blocked(now) {
			return cur
		}

		next := *cur
		next.Attempts++
		if next.Attempts >= l.policy.MaxAttempts {
			next.BlockedUntil = now.Add(l.policy.Block)
			return &next
		}
		allowed = true
		return &next
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// Reset forgets every attempt recorded for key.
func (l *Ledger) Reset(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}

// RemainingBlockMinutes returns the whole minutes left in an active block, rounded up,
// or zero when key is not blocked.
func (l *Ledger) RemainingBlockMinutes(ctx context.Context, key string) (int, error) {
	e, err := l.live(ctx, key)
	if err != nil || e == nil {
		return 0, err
	}

	now := l.now()
	if !e.Blocked(now) {
		return 0, nil
	}
	return int(math.Ceil(float64(e.BlockedUntil.Sub(now)) / float64(time.Minute))), nil
}

// RemainingAttempts returns how many attempts key has left before it is blocked.
// It does not delete expired entries.
func (l *Ledger) RemainingAttempts(ctx context.Context, key string) (int, error) {
	e, err := l.live(ctx, key)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return l.policy.MaxAttempts, nil
	}
	return max(0, l.policy.MaxAttempts-e.Attempts), nil
}

// Sweep removes expired entries when the store supports enumeration. Stores that
// cannot enumerate report zero; they rely on lazy deletion or their own expiry.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	sw, ok := l.store.(Sweeper)
	if !ok {
		return 0, nil
	}
	now := l.now()
	return sw.Sweep(ctx, func(_ string, e Entry) bool {
		return e.Expired(now, l.policy.Window)
	})
}

// live returns the entry for key, treating expired entries as absent.
func (l *Ledger) live(ctx context.Context, key string) (*Entry, error) {
	e, err := l.store.Get(ctx, key)
	if err != nil || e == nil {
		return nil, err
	}
	if e.Expired(l.now(), l.policy.Window) {
		return nil, nil
	}
	return e, nil
}
