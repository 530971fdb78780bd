package loanGuard

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by ConfigFromEnv.
const EnvPrefix = "LOANGUARD_"

// LoadConfigFile reads a YAML file over DefaultConfig and validates the result.
// Keys absent from the file keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ConfigFromEnv overlays LOANGUARD_* environment variables on DefaultConfig. Files
// listed in envFiles are loaded first with godotenv; a missing file is skipped and
// variables already set in the environment win.
func ConfigFromEnv(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := defaultConfig()
	l := envLoader{}

	cfg.RateLimit.MaxAttempts = l.int("RATE_LIMIT_MAX_ATTEMPTS", cfg.RateLimit.MaxAttempts)
	cfg.RateLimit.Window = l.duration("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)
	cfg.RateLimit.Block = l.duration("RATE_LIMIT_BLOCK", cfg.RateLimit.Block)
	cfg.RateLimit.SweepInterval = l.duration("RATE_LIMIT_SWEEP_INTERVAL", cfg.RateLimit.SweepInterval)

	cfg.Store.Backend = StoreBackend(l.str("STORE_BACKEND", string(cfg.Store.Backend)))
	cfg.Store.RedisAddr = l.str("REDIS_ADDR", cfg.Store.RedisAddr)
	cfg.Store.RedisPrefix = l.str("REDIS_PREFIX", cfg.Store.RedisPrefix)
	cfg.Store.HashKeys = l.bool("REDIS_HASH_KEYS", cfg.Store.HashKeys)

	cfg.Session.IdentityTTL = l.duration("SESSION_IDENTITY_TTL", cfg.Session.IdentityTTL)
	cfg.Role.TTL = l.duration("ROLE_TTL", cfg.Role.TTL)
	cfg.Role.Default = l.str("ROLE_DEFAULT", cfg.Role.Default)
	if v := l.str("ROLE_PRIVILEGED", ""); v != "" {
		cfg.Role.Privileged = splitList(v)
	}

	cfg.Gate.LoginPath = l.str("GATE_LOGIN_PATH", cfg.Gate.LoginPath)
	cfg.Gate.DefaultPath = l.str("GATE_DEFAULT_PATH", cfg.Gate.DefaultPath)
	cfg.Gate.Timeout = l.duration("GATE_TIMEOUT", cfg.Gate.Timeout)

	cfg.Backend.BaseURL = l.str("BACKEND_URL", cfg.Backend.BaseURL)
	cfg.Backend.APIKey = l.str("BACKEND_API_KEY", cfg.Backend.APIKey)
	cfg.Backend.Timeout = l.duration("BACKEND_TIMEOUT", cfg.Backend.Timeout)

	cfg.JWT.SigningMethod = l.str("JWT_SIGNING_METHOD", cfg.JWT.SigningMethod)
	cfg.JWT.Secret = l.str("JWT_SECRET", cfg.JWT.Secret)
	cfg.JWT.Issuer = l.str("JWT_ISSUER", cfg.JWT.Issuer)
	cfg.JWT.Audience = l.str("JWT_AUDIENCE", cfg.JWT.Audience)

	cfg.Audit.Enabled = l.bool("AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Metrics.Enabled = l.bool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = l.bool("METRICS_LATENCY", cfg.Metrics.EnableLatencyHistograms)

	cfg.Log.Level = l.str("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Development = l.bool("LOG_DEVELOPMENT", cfg.Log.Development)

	if err := errors.Join(l.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envLoader struct {
	errs []error
}

func (l *envLoader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (l *envLoader) str(name, def string) string {
	if v, ok := l.lookup(name); ok {
		return v
	}
	return def
}

func (l *envLoader) int(name string, def int) int {
	v, ok := l.lookup(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		return def
	}
	return n
}

func (l *envLoader) bool(name string, def bool) bool {
	v, ok := l.lookup(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		return def
	}
	return b
}

func (l *envLoader) duration(name string, def time.Duration) time.Duration {
	v, ok := l.lookup(name)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		return def
	}
	return d
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
