package session

import (
	"context"
	"time"

	"github.com/MrEthical07/loanGuard/autherr"
	"github.com/MrEthical07/loanGuard/internal/ttlcache"
)

// DefaultTTL is how long a fetched identity is served without a remote call.
const DefaultTTL = 30 * time.Second

// Cache is a single-slot identity cache. It is safe for concurrent use; concurrent
// misses share one backing fetch.
type Cache struct {
	fetcher Fetcher
	slot    *ttlcache.Slot[*Identity]
}

// NewCache creates a Cache over fetcher. A non-positive ttl selects DefaultTTL and a
// nil clock selects time.Now.
func NewCache(fetcher Fetcher, ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		fetcher: fetcher,
		slot:    ttlcache.New[*Identity](ttl, now),
	}
}

// Get returns the cached identity while it is fresh, otherwise fetches and caches it.
// The result may be nil. Lookup failures are returned as autherr.KindLookupFailed.
func (c *Cache) Get(ctx context.Context) (*Identity, error) {
	return c.slot.Get(ctx, c.fetch)
}

// Peek returns the cached identity without fetching. ok is false when the slot is
// empty or stale.
func (c *Cache) Peek() (identity *Identity, ok bool) {
	return c.slot.Peek()
}

// Invalidate empties the slot so the next Get always fetches.
func (c *Cache) Invalidate() {
	c.slot.Clear()
}

// Observe overwrites the slot with identity, regardless of the current TTL.
func (c *Cache) Observe(identity *Identity) {
	c.slot.Set(identity)
}

// OnAuthStateChange subscribes to n. Each event overwrites the slot before fn runs,
// so fn always observes a cache consistent with the event. fn may be nil.
func (c *Cache) OnAuthStateChange(n Notifier, fn func(Event)) (unsubscribe func()) {
	return n.SubscribeAuthState(func(ev Event) {
		c.Observe(ev.Identity)
		if fn != nil {
			fn(ev)
		}
	})
}

// TTL returns the identity lifetime.
func (c *Cache) TTL() time.Duration {
	return c.slot.TTL()
}

func (c *Cache) fetch(ctx context.Context) (*Identity, error) {
	if c.fetcher == nil {
		return nil, autherr.New(autherr.KindLookupFailed, "session.Get", errNoFetcher)
	}
	id, err := c.fetcher.CurrentIdentity(ctx)
	if err != nil {
		return nil, autherr.New(autherr.KindLookupFailed, "session.Get", err)
	}
	return id, nil
}
