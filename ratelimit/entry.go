package ratelimit

import "time"

// Entry is the ledger state for one key.
type Entry struct {
	Attempts       int
	FirstAttemptAt time.Time
	// BlockedUntil is zero while the key is still inside its window.
	BlockedUntil time.Time
}

// Blocked reports whether e carries a block that is still active at now.
// now == BlockedUntil counts as unblocked.
func (e Entry) Blocked(now time.Time) bool {
	return !e.BlockedUntil.IsZero() && now.Before(e.BlockedUntil)
}

// Expired reports whether lazy deletion applies to e at now: either the block has
// passed, or the window elapsed without a block.
func (e Entry) Expired(now time.Time, window time.Duration) bool {
	if !e.BlockedUntil.IsZero() {
		return !now.Before(e.BlockedUntil)
	}
	return now.Sub(e.FirstAttemptAt) > window
}

// ExpiresAt is the instant after which the entry is certainly stale.
func (e Entry) ExpiresAt(window time.Duration) time.Time {
	end := e.FirstAttemptAt.Add(window)
	if e.BlockedUntil.After(end) {
		return e.BlockedUntil
	}
	return end
}
