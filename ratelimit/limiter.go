package ratelimit

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/MrEthical07/loanGuard/internal/logging"
	"go.uber.org/zap"
)

// LoginKeyPrefix namespaces login throttling keys.
const LoginKeyPrefix = "login:"

// LoginKey builds the throttling key for a login identifier.
func LoginKey(email string) string {
	return LoginKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}

// Limiter is the caller-facing facade over a Ledger. Its methods never fail: store
// errors are logged and resolved fail-closed.
type Limiter struct {
	ledger *Ledger
	logger *zap.Logger
}

// NewLimiter wraps ledger. A nil logger discards store failures.
func NewLimiter(ledger *Ledger, logger *zap.Logger) *Limiter {
	return &Limiter{ledger: ledger, logger: logging.OrNop(logger)}
}

// Ledger exposes the underlying ledger.
func (l *Limiter) Ledger() *Ledger {
	return l.ledger
}

// IsRateLimited reports whether key is currently blocked.
func (l *Limiter) IsRateLimited(ctx context.Context, key string) bool {
	blocked, err := l.ledger.IsBlocked(ctx, key)
	if err != nil {
		l.storeFailure("is_rate_limited", key, err)
		return true
	}
	return blocked
}

// Attempt records an attempt for key and reports whether the caller may proceed.
func (l *Limiter) Attempt(ctx context.Context, key string) bool {
	allowed, err := l.ledger.RecordAttempt(ctx, key)
	if err != nil {
		l.storeFailure("attempt", key, err)
		return false
	}
	return allowed
}

// Reset forgives prior attempts for key.
func (l *Limiter) Reset(ctx context.Context, key string) {
	if err := l.ledger.Reset(ctx, key); err != nil {
		l.storeFailure("reset", key, err)
	}
}

// BlockedTimeRemaining returns the minutes left in key's block, rounded up.
func (l *Limiter) BlockedTimeRemaining(ctx context.Context, key string) int {
	minutes, err := l.ledger.RemainingBlockMinutes(ctx, key)
	if err != nil {
		l.storeFailure("blocked_time_remaining", key, err)
		return int(math.Ceil(float64(l.ledger.policy.Block) / float64(time.Minute)))
	}
	return minutes
}

// RemainingAttempts returns how many attempts key has before it is blocked.
func (l *Limiter) RemainingAttempts(ctx context.Context, key string) int {
	n, err := l.ledger.RemainingAttempts(ctx, key)
	if err != nil {
		l.storeFailure("remaining_attempts", key, err)
		return 0
	}
	return n
}

func (l *Limiter) storeFailure(op, key string, err error) {
	l.logger.Warn("rate limit store failure, failing closed",
		zap.String("op", op),
		zap.String("key", logging.MaskKey(key)),
		zap.Error(err),
	)
}
