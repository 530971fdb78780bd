package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps failures of a remote ledger store.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// UpdateFunc receives the current entry (nil when absent) and returns the entry to keep
// (nil deletes it). Returning current itself leaves the stored entry untouched. fn may
// run more than once when the store retries a conflicting transaction, so it must not
// have side effects beyond its return value and captured results.
type UpdateFunc func(current *Entry) *Entry

// Store holds ledger entries. Update must apply fn atomically with respect to other
// Update and Delete calls on the same key.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by stores that can enumerate entries for bulk expiry.
type Sweeper interface {
	// Sweep deletes every entry for which expired returns true and reports how many
	// were removed.
	Sweep(ctx context.Context, expired func(key string, e Entry) bool) (int, error)
}

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time
