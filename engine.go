package loanGuard

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/loanGuard/gate"
	"github.com/MrEthical07/loanGuard/internal/flows"
	"github.com/MrEthical07/loanGuard/ratelimit"
	"github.com/MrEthical07/loanGuard/role"
	"github.com/MrEthical07/loanGuard/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Engine owns the limiter, both caches and both gates for one backend session.
// A server with many users runs one Engine per browser session over a shared
// ledger store; see middleware.Sessions. All methods are safe for concurrent use.
type Engine struct {
	config  Config
	logger  *zap.Logger
	now     func() time.Time
	backend Backend

	limiter   *ratelimit.Limiter
	sessions  *session.Cache
	roles     *role.Cache
	authGate  *gate.Gate
	adminGate *gate.AdminGate
	flow      flows.Service

	audit   *auditDispatcher
	metrics *Metrics

	unsubscribe func()
	ownedRedis  redis.UniversalClient
	sweepStop   chan struct{}
	sweepDone   chan struct{}
	closeOnce   sync.Once
}

type engineParts struct {
	config     Config
	backend    Backend
	store      ratelimit.Store
	roleSource role.Source
	logger     *zap.Logger
	now        func() time.Time
	auditSink  AuditSink
	metrics    *Metrics
	ownedRedis redis.UniversalClient
}

func newEngine(p engineParts) *Engine {
	cfg := p.config
	e := &Engine{
		config:     cfg,
		logger:     p.logger,
		now:        p.now,
		backend:    p.backend,
		audit:      newAuditDispatcher(cfg.Audit, p.auditSink),
		metrics:    p.metrics,
		ownedRedis: p.ownedRedis,
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(cfg.Metrics)
	}

	ledger := ratelimit.NewLedger(p.store, ratelimit.Policy{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
		Block:       cfg.RateLimit.Block,
	}, p.now)
	e.limiter = ratelimit.NewLimiter(ledger, p.logger.Named("ratelimit"))

	e.sessions = session.NewCache(p.backend, cfg.Session.IdentityTTL, p.now)
	e.roles = role.NewCache(e.sessions, p.roleSource, role.Options{
		TTL:        cfg.Role.TTL,
		Fallback:   cfg.defaultRole(),
		Logger:     p.logger.Named("role"),
		Now:        p.now,
		OnFallback: func(error) { e.metrics.Inc(MetricRoleFallback) },
	})

	gateCfg := gate.Config{
		LoginPath:   cfg.Gate.LoginPath,
		DefaultPath: cfg.Gate.DefaultPath,
		Timeout:     cfg.Gate.Timeout,
		Privileged:  cfg.privilegedSet(),
	}
	gateOpts := gate.Options{
		Logger:   p.logger.Named("gate"),
		Observer: e.observeGate,
		Now:      p.now,
	}
	e.authGate = gate.New(e.sessions, p.backend, gate.SignOutFunc(e.forceSignOut), gateCfg, gateOpts)
	e.adminGate = gate.NewAdmin(e.roles, gateCfg, gateOpts)

	e.flow = flows.New(e.flowDeps())

	// Pushed auth events overwrite the identity slot; a new or departed identity
	// also drops the cached role.
	e.unsubscribe = e.sessions.OnAuthStateChange(p.backend, func(ev session.Event) {
		if ev.Type != session.EventTokenRefreshed {
			e.roles.Clear()
		}
	})

	if cfg.RateLimit.SweepInterval > 0 {
		e.startSweeper(cfg.RateLimit.SweepInterval)
	}

	return e
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Close stops the sweeper, unsubscribes from the backend, drains audit events and
// closes a Redis client the builder created. It is idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.sweepStop != nil {
			close(e.sweepStop)
			<-e.sweepDone
		}
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
		if e.audit != nil {
			e.audit.Close()
		}
		if e.ownedRedis != nil {
			if err := e.ownedRedis.Close(); err != nil {
				e.logger.Warn("closing redis client", zap.Error(err))
			}
		}
	})
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *zap.Logger {
	if e == nil || e.logger == nil {
		return zap.NewNop()
	}
	return e.logger
}

// AuditDropped reports how many audit events were dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

/*
====================================
RATE LIMITER FACADE
====================================
*/

// IsRateLimited reports whether key is blocked. Store failures report true.
func (e *Engine) IsRateLimited(ctx context.Context, key string) bool {
	return e.limiter.IsRateLimited(ctx, key)
}

// Attempt records an attempt against key and reports whether another try is allowed.
func (e *Engine) Attempt(ctx context.Context, key string) bool {
	return e.limiter.Attempt(ctx, key)
}

// ResetAttempts forgives every attempt recorded for key.
func (e *Engine) ResetAttempts(ctx context.Context, key string) {
	e.limiter.Reset(ctx, key)
}

// BlockedTimeRemaining returns the whole minutes left in key's block, rounded up.
func (e *Engine) BlockedTimeRemaining(ctx context.Context, key string) int {
	return e.limiter.BlockedTimeRemaining(ctx, key)
}

func (e *Engine) RemainingAttempts(ctx context.Context, key string) int {
	return e.limiter.RemainingAttempts(ctx, key)
}

// Sweep removes expired ledger entries and returns how many were removed.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	return e.limiter.Ledger().Sweep(ctx)
}

func (e *Engine) startSweeper(interval time.Duration) {
	e.sweepStop = make(chan struct{})
	e.sweepDone = make(chan struct{})

	go func() {
		defer close(e.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.sweepStop:
				return
			case <-ticker.C:
				n, err := e.Sweep(context.Background())
				if err != nil {
					e.logger.Warn("ledger sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					e.logger.Debug("ledger sweep", zap.Int("removed", n))
				}
			}
		}
	}()
}

/*
====================================
CACHES
====================================
*/

// CurrentIdentity returns the cached identity, fetching it when the slot is stale.
// A nil identity with a nil error means nobody is signed in.
func (e *Engine) CurrentIdentity(ctx context.Context) (*session.Identity, error) {
	return e.sessions.Get(ctx)
}

// InvalidateSession forces the next identity lookup to reach the backend.
func (e *Engine) InvalidateSession() {
	e.sessions.Invalidate()
}

// CurrentRole returns the current identity's role. It never fails; lookup problems
// resolve to the configured least-privileged role.
func (e *Engine) CurrentRole(ctx context.Context) role.Role {
	return e.roles.Get(ctx)
}

func (e *Engine) ClearRoleCache() {
	e.roles.Clear()
}

// OnAuthStateChange subscribes fn to backend auth events. The identity cache is
// updated before fn runs.
func (e *Engine) OnAuthStateChange(fn func(session.Event)) (unsubscribe func()) {
	return e.sessions.OnAuthStateChange(e.backend, fn)
}

// authChanged runs after every sign-in and sign-out call, whatever the backend said.
func (e *Engine) authChanged() {
	e.sessions.Invalidate()
	e.roles.Clear()
}
