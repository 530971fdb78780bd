package role

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/loanGuard/internal/logging"
	"github.com/MrEthical07/loanGuard/internal/ttlcache"
	"github.com/MrEthical07/loanGuard/session"
	"go.uber.org/zap"
)

// DefaultTTL is how long a resolved role is served without a remote call.
const DefaultTTL = 60 * time.Second

// ErrUnknownRole is reported (to the log) when a source returns a name outside the
// known role set.
var ErrUnknownRole = errors.New("role: unknown role name")

// Source fetches the role a user holds in one organization.
type Source interface {
	RoleFor(ctx context.Context, userID, organizationID string) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, userID, organizationID string) (string, error)

func (f SourceFunc) RoleFor(ctx context.Context, userID, organizationID string) (string, error) {
	return f(ctx, userID, organizationID)
}

// Identities supplies the current identity. *session.Cache satisfies it.
type Identities interface {
	Get(ctx context.Context) (*session.Identity, error)
}

// Options tunes a Cache. Zero values select the defaults.
type Options struct {
	TTL      time.Duration
	Fallback Role
	Logger   *zap.Logger
	Now      func() time.Time
	// OnFallback runs whenever a failed lookup is resolved to the fallback role.
	OnFallback func(err error)
}

// cached is only served back to the same user in the same organization.
type cached struct {
	role   Role
	userID string
	orgID  string
}

func (v cached) heldBy(id *session.Identity) bool {
	return v.userID == id.ID && v.orgID == id.OrganizationID
}

// Cache memoizes the current identity's role for a TTL. It is safe for concurrent use.
type Cache struct {
	identities Identities
	source     Source
	fallback   Role
	logger     *zap.Logger
	onFallback func(error)
	slot       *ttlcache.Slot[cached]
}

// NewCache creates a role cache scoped to the identity reported by identities.
func NewCache(identities Identities, source Source, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Fallback == "" {
		opts.Fallback = LeastPrivileged
	}
	return &Cache{
		identities: identities,
		source:     source,
		fallback:   opts.Fallback,
		logger:     logging.OrNop(opts.Logger),
		onFallback: opts.OnFallback,
		slot:       ttlcache.New[cached](opts.TTL, opts.Now),
	}
}

// Get returns the role of the current identity. It never fails: a missing identity,
// a lookup error or an unknown role name all resolve to the fallback role.
func (c *Cache) Get(ctx context.Context) Role {
	id, err := c.identities.Get(ctx)
	if err != nil {
		c.logger.Warn("role lookup skipped, identity unavailable", zap.Error(err))
		c.fellBack(err)
		return c.fallback
	}
	if id == nil {
		return c.fallback
	}

	v, err := c.slot.GetIf(ctx,
		func(v cached) bool { return v.heldBy(id) },
		func(ctx context.Context) (cached, error) {
			name, err := c.source.RoleFor(ctx, id.ID, id.OrganizationID)
			if err != nil {
				return cached{}, err
			}
			r, ok := Parse(name)
			if !ok {
				return cached{}, fmt.Errorf("%w: %q", ErrUnknownRole, name)
			}
			return cached{role: r, userID: id.ID, orgID: id.OrganizationID}, nil
		},
	)
	if err != nil {
		c.logger.Warn("role lookup failed, serving least privilege",
			zap.String("user_id", id.ID),
			zap.String("organization_id", id.OrganizationID),
			zap.String("fallback", string(c.fallback)),
			zap.Error(err),
		)
		c.fellBack(err)
		return c.fallback
	}
	return v.role
}

func (c *Cache) fellBack(err error) {
	if c.onFallback != nil {
		c.onFallback(err)
	}
}

// Clear drops the cached role without touching the session cache.
func (c *Cache) Clear() {
	c.slot.Clear()
}

// Fallback returns the role served when lookups fail.
func (c *Cache) Fallback() Role {
	return c.fallback
}
