package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLedger(t *testing.T) (*Ledger, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewLedger(NewMemoryStore(), DefaultPolicy(), clock.Now), clock
}

func TestLedgerBlocksOnMaxAttempt(t *testing.T) {
	ctx := context.Background()

	for _, key := range []string{"login:a@b.com", "login:", "export:org-7"} {
		l, _ := newTestLedger(t)
		max := l.Policy().MaxAttempts

		for i := 1; i < max; i++ {
			ok, err := l.RecordAttempt(ctx, key)
			if err != nil || !ok {
				t.Fatalf("%s attempt %d: expected allowed, got %v err=%v", key, i, ok, err)
			}
		}
		ok, err := l.RecordAttempt(ctx, key)
		if err != nil || ok {
			t.Fatalf("%s attempt %d: expected rejection, got %v err=%v", key, max, ok, err)
		}

		blocked, err := l.IsBlocked(ctx, key)
		if err != nil || !blocked {
			t.Fatalf("%s: expected blocked after max attempts, got %v err=%v", key, blocked, err)
		}
	}
}

func TestLedgerResetForgives(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	key := "login:a@b.com"

	for i := 0; i < 7; i++ {
		_, _ = l.RecordAttempt(ctx, key)
	}
	if err := l.Reset(ctx, key); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	ok, err := l.RecordAttempt(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected attempt after reset to be allowed, got %v err=%v", ok, err)
	}
	if got, _ := l.RemainingAttempts(ctx, key); got != 4 {
		t.Fatalf("expected 4 remaining after one fresh attempt, got %d", got)
	}
}

func TestLedgerIsBlockedDoesNotChangeRemaining(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLedger(t)
	key := "login:a@b.com"

	_, _ = l.RecordAttempt(ctx, key)
	_, _ = l.RecordAttempt(ctx, key)

	before, _ := l.RemainingAttempts(ctx, key)
	for i := 0; i < 10; i++ {
		if _, err := l.IsBlocked(ctx, key); err != nil {
			t.Fatalf("IsBlocked failed: %v", err)
		}
	}
	if after, _ := l.RemainingAttempts(ctx, key); after != before {
		t.Fatalf("IsBlocked changed remaining attempts: %d -> %d", before, after)
	}

	clock.Advance(16 * time.Minute)
	before, _ = l.RemainingAttempts(ctx, key)
	_, _ = l.IsBlocked(ctx, key)
	if after, _ := l.RemainingAttempts(ctx, key); after != before {
		t.Fatalf("lazy deletion changed remaining attempts: %d -> %d", before, after)
	}
}

func TestLedgerUnblocksExactlyAtBlockedUntil(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLedger(t)
	key := "login:a@b.com"

	for i := 0; i < 5; i++ {
		_, _ = l.RecordAttempt(ctx, key)
	}

	clock.Advance(30*time.Minute - time.Nanosecond)
	if blocked, _ := l.IsBlocked(ctx, key); !blocked {
		t.Fatal("expected block to hold just before BlockedUntil")
	}

	clock.Advance(time.Nanosecond)
	if blocked, _ := l.IsBlocked(ctx, key); blocked {
		t.Fatal("expected key to be unblocked at BlockedUntil")
	}
}

func TestLedgerLoginLockoutScenario(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLedger(t)
	limiter := NewLimiter(l, nil)
	key := "login:a@b.com"

	want := []bool{true, true, true, true, false}
	for i, w := range want {
		if got := limiter.Attempt(ctx, key); got != w {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
	if got := limiter.BlockedTimeRemaining(ctx, key); got != 30 {
		t.Fatalf("expected 30 minutes remaining, got %d", got)
	}
	if got := limiter.RemainingAttempts(ctx, key); got != 0 {
		t.Fatalf("expected 0 remaining attempts while blocked, got %d", got)
	}

	clock.Advance(31 * time.Minute)
	if limiter.IsRateLimited(ctx, key) {
		t.Fatal("expected block to have expired after 31 minutes")
	}
	if got := limiter.RemainingAttempts(ctx, key); got != 5 {
		t.Fatalf("expected 5 remaining attempts, got %d", got)
	}
}

func TestLedgerBlockedAttemptDoesNotTouchCounter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newFakeClock()
	l := NewLedger(store, DefaultPolicy(), clock.Now)
	key := "login:a@b.com"

	for i := 0; i < 5; i++ {
		_, _ = l.RecordAttempt(ctx, key)
	}
	before, _ := store.Get(ctx, key)

	clock.Advance(10 * time.Minute)
	if ok, _ := l.RecordAttempt(ctx, key); ok {
		t.Fatal("expected blocked attempt to be rejected")
	}

	after, _ := store.Get(ctx, key)
	if *before != *after {
		t.Fatalf("blocked attempt mutated entry: %+v -> %+v", *before, *after)
	}
	if got, _ := l.RemainingBlockMinutes(ctx, key); got != 20 {
		t.Fatalf("expected 20 minutes remaining, got %d", got)
	}
}

func TestLedgerWindowExpiryStartsFresh(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newFakeClock()
	l := NewLedger(store, DefaultPolicy(), clock.Now)
	key := "login:a@b.com"

	for i := 0; i < 4; i++ {
		_, _ = l.RecordAttempt(ctx, key)
	}

	clock.Advance(15 * time.Minute)
	if got, _ := l.RemainingAttempts(ctx, key); got != 1 {
		t.Fatalf("window end is inclusive; expected 1 remaining, got %d", got)
	}

	clock.Advance(time.Second)
	if blocked, _ := l.IsBlocked(ctx, key); blocked {
		t.Fatal("expired window must not report blocked")
	}
	if store.Len() != 0 {
		t.Fatalf("expected lazy deletion of expired window, store has %d entries", store.Len())
	}

	ok, _ := l.RecordAttempt(ctx, key)
	if !ok {
		t.Fatal("expected fresh window after expiry")
	}
	e, _ := store.Get(ctx, key)
	if e.Attempts != 1 || !e.FirstAttemptAt.Equal(clock.Now()) {
		t.Fatalf("expected fresh entry, got %+v", *e)
	}
}

func TestLedgerReentryAfterBlockStartsAtOne(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newFakeClock()
	l := NewLedger(store, DefaultPolicy(), clock.Now)
	key := "login:a@b.com"

	for i := 0; i < 5; i++ {
		_, _ = l.RecordAttempt(ctx, key)
	}
	clock.Advance(30 * time.Minute)

	if ok, _ := l.RecordAttempt(ctx, key); !ok {
		t.Fatal("expected attempt after block expiry to be allowed")
	}
	e, _ := store.Get(ctx, key)
	if e == nil || e.Attempts != 1 || !e.BlockedUntil.IsZero() {
		t.Fatalf("expected fresh window entry, got %+v", e)
	}
}

func TestLedgerSweepRemovesExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := newFakeClock()
	l := NewLedger(store, DefaultPolicy(), clock.Now)

	for i := 0; i < 3; i++ {
		_, _ = l.RecordAttempt(ctx, fmt.Sprintf("login:user%d@b.com", i))
	}
	for i := 0; i < 5; i++ {
		_, _ = l.RecordAttempt(ctx, "login:blocked@b.com")
	}

	clock.Advance(20 * time.Minute)
	removed, err := l.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 expired windows swept, got %d", removed)
	}
	if store.Len() != 1 {
		t.Fatalf("expected blocked entry to survive sweep, store has %d", store.Len())
	}
}

func TestLedgerConcurrentAttemptsNeverUndercount(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	key := "login:race@b.com"

	const workers = 64
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			ok, _ := l.RecordAttempt(ctx, key)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != l.Policy().MaxAttempts-1 {
		t.Fatalf("expected exactly %d allowed attempts, got %d", l.Policy().MaxAttempts-1, allowed)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	for _, p := range []Policy{
		{MaxAttempts: 0, Window: time.Minute, Block: time.Minute},
		{MaxAttempts: 1, Window: 0, Block: time.Minute},
		{MaxAttempts: 1, Window: time.Minute, Block: -time.Second},
	} {
		if err := p.Validate(); err == nil {
			t.Fatalf("expected %+v to be rejected", p)
		}
	}
}

func TestLoginKeyNormalizes(t *testing.T) {
	if got := LoginKey("  Ana.Lopez@Prestamos.MX "); got != "login:ana.lopez@prestamos.mx" {
		t.Fatalf("unexpected key %q", got)
	}
}
