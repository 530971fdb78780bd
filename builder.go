package loanGuard

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/loanGuard/backend"
	"github.com/MrEthical07/loanGuard/jwt"
	"github.com/MrEthical07/loanGuard/ratelimit"
	"github.com/MrEthical07/loanGuard/role"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RowQuerier is the slice of a pgx pool the Postgres role source needs.
// *pgxpool.Pool and pgx.Conn satisfy it.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config

	backend    Backend
	redis      redis.UniversalClient
	store      ratelimit.Store
	roleSource role.Source
	postgres   RowQuerier

	logger    *zap.Logger
	auditSink AuditSink
	metrics   *Metrics
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend injects the auth backend. Without it Build constructs a backend.Client
// from Config.Backend and Config.JWT.
func (b *Builder) WithBackend(be Backend) *Builder {
	b.backend = be
	return b
}

// WithRedis shares the attempt ledger through Redis. A client given here selects the
// redis store whatever Config.Store.Backend says.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	b.config.Store.Backend = StoreRedis
	return b
}

// WithStore injects a custom ledger store. It takes precedence over the store config.
func (b *Builder) WithStore(store ratelimit.Store) *Builder {
	b.store = store
	return b
}

// WithRoleSource overrides where roles come from. The default asks the backend.
func (b *Builder) WithRoleSource(src role.Source) *Builder {
	b.roleSource = src
	return b
}

// WithPostgresRoles reads roles straight from the membership table in Config.Role.Table.
func (b *Builder) WithPostgresRoles(db RowQuerier) *Builder {
	b.postgres = db
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for every component. Tests use it to drive expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithMetrics makes the engine count into m instead of its own counters. Engines
// serving separate sessions of one process share a Metrics this way.
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- BACKEND --------
	be := b.backend
	if be == nil {
		if cfg.Backend.BaseURL == "" {
			return nil, ErrNoBackend
		}
		client, err := newBackendClient(cfg, logger, now)
		if err != nil {
			return nil, err
		}
		be = client
	}

	// -------- LEDGER STORE --------
	store, ownedRedis, err := b.buildStore(cfg)
	if err != nil {
		return nil, err
	}

	// -------- ROLE SOURCE --------
	src := b.roleSource
	if src == nil && b.postgres != nil {
		src = role.NewPostgresSource(b.postgres, cfg.Role.Table)
	}
	if src == nil {
		src = be
	}

	engine := newEngine(engineParts{
		config:     cfg,
		backend:    be,
		store:      store,
		roleSource: src,
		logger:     logger,
		now:        now,
		auditSink:  b.auditSink,
		metrics:    b.metrics,
		ownedRedis: ownedRedis,
	})

	b.built = true

	return engine, nil
}

func (b *Builder) buildStore(cfg Config) (ratelimit.Store, redis.UniversalClient, error) {
	if b.store != nil {
		return b.store, nil, nil
	}

	if b.redis != nil || cfg.Store.Backend == StoreRedis {
		client := b.redis
		var owned redis.UniversalClient
		if client == nil {
			if cfg.Store.RedisAddr == "" {
				return nil, nil, errors.New("redis store requires a client or Store RedisAddr")
			}
			client = redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs: strings.Split(cfg.Store.RedisAddr, ","),
			})
			owned = client
		}
		return ratelimit.NewRedisStore(client, ratelimit.RedisConfig{
			Prefix:     cfg.Store.RedisPrefix,
			HashKeys:   cfg.Store.HashKeys,
			Retention:  cfg.Store.Retention,
			MaxRetries: cfg.Store.MaxTxRetries,
		}), owned, nil
	}
	return ratelimit.NewMemoryStore(), nil, nil
}

func newBackendClient(cfg Config, logger *zap.Logger, now func() time.Time) (*backend.Client, error) {
	inspector, err := jwt.NewInspector(jwt.Config{
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		Secret:        []byte(cfg.JWT.Secret),
		PublicKey:     []byte(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	return backend.New(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		APIKey:    cfg.Backend.APIKey,
		Timeout:   cfg.Backend.Timeout,
		Inspector: inspector,
		Logger:    logger.Named("backend"),
		Now:       now,
	})
}
