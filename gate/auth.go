package gate

import (
	"context"
	"time"

	"github.com/MrEthical07/loanGuard/autherr"
	"github.com/MrEthical07/loanGuard/backend"
	"github.com/MrEthical07/loanGuard/internal/logging"
	"github.com/MrEthical07/loanGuard/session"
	"go.uber.org/zap"
)

// Identities supplies the cached current identity. *session.Cache satisfies it.
type Identities interface {
	Get(ctx context.Context) (*session.Identity, error)
}

// SessionValidator performs the token check that follows a cached identity hit.
// A nil session with a nil error means the session is gone or expired.
type SessionValidator interface {
	ValidateSession(ctx context.Context) (*backend.SessionInfo, error)
}

// SignOuter ends the session and invalidates the identity cache.
type SignOuter interface {
	SignOut(ctx context.Context) error
}

// SignOutFunc adapts a function to SignOuter.
type SignOutFunc func(ctx context.Context) error

func (f SignOutFunc) SignOut(ctx context.Context) error { return f(ctx) }

// Options carries the optional collaborators of a guard.
type Options struct {
	Logger   *zap.Logger
	Observer Observer
	Now      func() time.Time
}

// Gate is the authentication guard.
type Gate struct {
	identities Identities
	validator  SessionValidator
	signOut    SignOuter
	config     Config
	logger     *zap.Logger
	observe    Observer
	now        func() time.Time
}

// New builds a Gate. signOut may be nil, in which case an expired session is denied
// without a forced sign-out.
func New(identities Identities, validator SessionValidator, signOut SignOuter, cfg Config, opts Options) *Gate {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{
		identities: identities,
		validator:  validator,
		signOut:    signOut,
		config:     cfg.withDefaults(),
		logger:     logging.OrNop(opts.Logger),
		observe:    opts.Observer,
		now:        opts.Now,
	}
}

// Check evaluates the guard once and applies its side effects through fx.
func (g *Gate) Check(ctx context.Context, fx Effects) Decision {
	start := g.now()
	id := newID()
	fx.state(Checking)

	fail := func(reason Reason, err error) Decision {
		return Decision{
			ID:       id,
			State:    Denied,
			Reason:   reason,
			Notice:   NoticeAuthError,
			Redirect: g.config.LoginPath,
			Err:      err,
		}
	}

	d := run(ctx, g.config.Timeout, "gate.Check", fail, func(ctx context.Context) Decision {
		return g.evaluate(ctx, id, fail)
	})
	d = finish(g.logger, g.observe, KindAuth, d, start, g.now)
	fx.apply(d)
	return d
}

func (g *Gate) evaluate(ctx context.Context, id string, fail func(Reason, error) Decision) Decision {
	identity, err := g.identities.Get(ctx)
	if err != nil {
		return fail(ReasonLookupFailed, err)
	}
	if identity == nil {
		return Decision{
			ID:       id,
			State:    Denied,
			Reason:   ReasonUnauthenticated,
			Notice:   NoticeLoginRequired,
			Redirect: g.config.LoginPath,
		}
	}

	if g.validator == nil {
		return fail(ReasonLookupFailed, autherr.New(autherr.KindLookupFailed, "gate.Check", errNoValidator))
	}
	info, err := g.validator.ValidateSession(ctx)
	if err != nil {
		return fail(ReasonLookupFailed, err)
	}
	if info == nil {
		if g.signOut != nil {
			if err := g.signOut.SignOut(ctx); err != nil {
				g.logger.Warn("forced sign-out failed",
					zap.String("evaluation_id", id),
					zap.Error(err),
				)
			}
		}
		return Decision{
			ID:       id,
			State:    Denied,
			Reason:   ReasonSessionExpired,
			Notice:   NoticeSessionExpired,
			Redirect: g.config.LoginPath,
			Identity: identity,
		}
	}

	return Decision{ID: id, State: Allowed, Identity: identity}
}

// Config returns the effective guard configuration.
func (g *Gate) Config() Config {
	return g.config
}
