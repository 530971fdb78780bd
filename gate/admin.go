package gate

import (
	"context"
	"time"

	"github.com/MrEthical07/loanGuard/internal/logging"
	"github.com/MrEthical07/loanGuard/role"
	"go.uber.org/zap"
)

// Roles supplies the current role. *role.Cache satisfies it.
type Roles interface {
	Get(ctx context.Context) role.Role
}

// AdminGate allows only privileged roles.
type AdminGate struct {
	roles   Roles
	config  Config
	logger  *zap.Logger
	observe Observer
	now     func() time.Time
}

// NewAdmin builds an AdminGate over roles.
func NewAdmin(roles Roles, cfg Config, opts Options) *AdminGate {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AdminGate{
		roles:   roles,
		config:  cfg.withDefaults(),
		logger:  logging.OrNop(opts.Logger),
		observe: opts.Observer,
		now:     opts.Now,
	}
}

// Check evaluates the admin guard once and applies its side effects through fx.
// Denials, including failures, redirect to the default view.
func (a *AdminGate) Check(ctx context.Context, fx Effects) Decision {
	start := a.now()
	id := newID()
	fx.state(Checking)

	fail := func(reason Reason, err error) Decision {
		return Decision{
			ID:       id,
			State:    Denied,
			Reason:   reason,
			Notice:   NoticeForbidden,
			Redirect: a.config.DefaultPath,
			Err:      err,
		}
	}

	d := run(ctx, a.config.Timeout, "gate.AdminCheck", fail, func(ctx context.Context) Decision {
		r := a.roles.Get(ctx)
		if !a.config.Privileged.Contains(r) {
			d := fail(ReasonForbidden, nil)
			d.Role = r
			return d
		}
		return Decision{ID: id, State: Allowed, Role: r}
	})
	d = finish(a.logger, a.observe, KindAdmin, d, start, a.now)
	fx.apply(d)
	return d
}
