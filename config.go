package loanGuard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/loanGuard/role"
)

// Config is the full engine configuration. Start from DefaultConfig and override.
type Config struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	Role      RoleConfig      `yaml:"role"`
	Gate      GateConfig      `yaml:"gate"`
	Backend   BackendConfig   `yaml:"backend"`
	JWT       JWTConfig       `yaml:"jwt"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the attempt ledger thresholds.
type RateLimitConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
	Block       time.Duration `yaml:"block"`
	// SweepInterval enables a background sweep of expired entries. Zero disables it.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// StoreBackend selects where ledger entries live.
type StoreBackend string

const (
	// StoreMemory keeps entries in the process; limits are per instance.
	StoreMemory StoreBackend = "memory"
	// StoreRedis shares entries between instances through Redis.
	StoreRedis StoreBackend = "redis"
)

// StoreConfig selects and tunes the ledger store.
type StoreConfig struct {
	Backend      StoreBackend  `yaml:"backend"`
	RedisAddr    string        `yaml:"redis_addr"`
	RedisPrefix  string        `yaml:"redis_prefix"`
	HashKeys     bool          `yaml:"hash_keys"`
	Retention    time.Duration `yaml:"retention"`
	MaxTxRetries int           `yaml:"max_tx_retries"`
}

/*
====================================
CACHE CONFIG
====================================
*/

// SessionConfig tunes the identity cache.
type SessionConfig struct {
	IdentityTTL time.Duration `yaml:"identity_ttl"`
}

// RoleConfig tunes the role cache and the admin role set.
type RoleConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	Default    string        `yaml:"default"`
	Privileged []string      `yaml:"privileged"`
	// Table is the membership table read by the Postgres role source.
	Table string `yaml:"table"`
}

/*
====================================
GATE CONFIG
====================================
*/

// GateConfig holds the guard redirect targets and the evaluation deadline.
type GateConfig struct {
	LoginPath   string        `yaml:"login_path"`
	DefaultPath string        `yaml:"default_path"`
	Timeout     time.Duration `yaml:"timeout"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig locates the hosted auth REST API.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// JWTConfig controls local session token inspection. An empty SigningMethod decodes
// tokens without verifying signatures.
type JWTConfig struct {
	SigningMethod string        `yaml:"signing_method"` // "", "hs256" or "ed25519"
	Secret        string        `yaml:"secret"`
	PublicKey     string        `yaml:"public_key"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// LogConfig controls the logger built when none is injected.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults: 5 attempts per 15 minutes, a
// 30 minute block, a 30s identity cache, a 60s role cache and a 10s gate deadline.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			MaxAttempts:   5,
			Window:        15 * time.Minute,
			Block:         30 * time.Minute,
			SweepInterval: 0,
		},
		Store: StoreConfig{
			Backend:      StoreMemory,
			RedisPrefix:  "lg:rl:",
			HashKeys:     true,
			Retention:    time.Hour,
			MaxTxRetries: 8,
		},
		Session: SessionConfig{
			IdentityTTL: 30 * time.Second,
		},
		Role: RoleConfig{
			TTL:        60 * time.Second,
			Default:    string(role.LeastPrivileged),
			Privileged: []string{string(role.Owner), string(role.Admin)},
			Table:      "organization_members",
		},
		Gate: GateConfig{
			LoginPath:   "/login",
			DefaultPath: "/",
			Timeout:     10 * time.Second,
		},
		Backend: BackendConfig{
			Timeout: 15 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Role.Privileged = append([]string(nil), cfg.Role.Privileged...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Rate limit
	if c.RateLimit.MaxAttempts <= 0 {
		return errors.New("RateLimit MaxAttempts must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0")
	}
	if c.RateLimit.Block <= 0 {
		return errors.New("RateLimit Block must be > 0")
	}
	if c.RateLimit.SweepInterval < 0 {
		return errors.New("RateLimit SweepInterval must be >= 0")
	}

	// Store
	switch c.Store.Backend {
	case StoreMemory, "":
	case StoreRedis:
		if c.Store.Retention > 0 && c.Store.Retention < c.RateLimit.Window+c.RateLimit.Block {
			return errors.New("Store Retention must cover RateLimit Window plus Block")
		}
		if c.Store.MaxTxRetries < 0 {
			return errors.New("Store MaxTxRetries must be >= 0")
		}
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}

	// Caches
	if c.Session.IdentityTTL <= 0 {
		return errors.New("Session IdentityTTL must be > 0")
	}
	if c.Role.TTL <= 0 {
		return errors.New("Role TTL must be > 0")
	}
	if _, ok := role.Parse(c.Role.Default); !ok {
		return fmt.Errorf("Role Default %q is not a known role", c.Role.Default)
	}
	if len(c.Role.Privileged) == 0 {
		return errors.New("Role Privileged must not be empty")
	}
	for _, name := range c.Role.Privileged {
		r, ok := role.Parse(name)
		if !ok {
			return fmt.Errorf("Role Privileged contains unknown role %q", name)
		}
		if string(r) == strings.ToLower(strings.TrimSpace(c.Role.Default)) {
			return errors.New("Role Default must not be privileged")
		}
	}

	// Gate
	if !strings.HasPrefix(c.Gate.LoginPath, "/") {
		return errors.New("Gate LoginPath must be an absolute path")
	}
	if !strings.HasPrefix(c.Gate.DefaultPath, "/") {
		return errors.New("Gate DefaultPath must be an absolute path")
	}
	if c.Gate.Timeout <= 0 {
		return errors.New("Gate Timeout must be > 0")
	}

	// JWT
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "":
	case "hs256":
		if c.JWT.Secret == "" {
			return errors.New("hs256 requires JWT Secret")
		}
	case "ed25519":
		if c.JWT.PublicKey == "" {
			return errors.New("ed25519 requires JWT PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func (c *Config) privilegedSet() role.Set {
	s := make(role.Set, len(c.Role.Privileged))
	for _, name := range c.Role.Privileged {
		if r, ok := role.Parse(name); ok {
			s[r] = struct{}{}
		}
	}
	return s
}

func (c *Config) defaultRole() role.Role {
	r, ok := role.Parse(c.Role.Default)
	if !ok {
		return role.LeastPrivileged
	}
	return r
}
