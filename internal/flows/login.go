package flows

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/loanGuard/autherr"
	"github.com/MrEthical07/loanGuard/backend"
	"github.com/MrEthical07/loanGuard/session"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Identity  *session.Identity
	ExpiresAt time.Time
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	LoginBlocked     int
	BackendFailure   int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	// RateLimited builds the rejection for a blocked key from the minutes left.
	RateLimited func(minutes int) error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Key func(email string) string

	IsRateLimited     func(context.Context, string) bool
	Attempt           func(context.Context, string) bool
	ResetAttempts     func(context.Context, string)
	BlockedMinutes    func(context.Context, string) int
	RemainingAttempts func(context.Context, string) int

	SignIn func(ctx context.Context, email, password string) (*backend.SessionInfo, error)
	// AuthChanged runs after every completed sign-in call, successful or not.
	AuthChanged func()

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, email string, err error, metadata func() map[string]string)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin consults the limiter, signs in, and records or forgives the attempt.
// Only credential rejections count as attempts; backend outages do not.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*LoginResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.AuthChanged == nil {
		deps.AuthChanged = func() {}
	}
	if deps.Key == nil ||
		deps.IsRateLimited == nil ||
		deps.Attempt == nil ||
		deps.ResetAttempts == nil ||
		deps.BlockedMinutes == nil ||
		deps.SignIn == nil ||
		deps.Errors.RateLimited == nil {
		return nil, deps.Errors.EngineNotReady
	}

	key := deps.Key(email)

	rateLimited := func() error {
		minutes := deps.BlockedMinutes(ctx, key)
		deps.MetricInc(deps.Metrics.LoginRateLimited)
		err := deps.Errors.RateLimited(minutes)
		deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, "", email, err, func() map[string]string {
			return map[string]string{"blocked_minutes": itoa(minutes)}
		})
		return err
	}

	if deps.IsRateLimited(ctx, key) {
		return nil, rateLimited()
	}

	failure := func(reason string) error {
		deps.MetricInc(deps.Metrics.LoginFailure)
		allowed := deps.Attempt(ctx, key)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", email, deps.Errors.InvalidCredentials, func() map[string]string {
			md := map[string]string{"reason": reason}
			if deps.RemainingAttempts != nil {
				md["remaining_attempts"] = itoa(deps.RemainingAttempts(ctx, key))
			}
			return md
		})
		if !allowed {
			deps.MetricInc(deps.Metrics.LoginBlocked)
			return rateLimited()
		}
		return deps.Errors.InvalidCredentials
	}

	if password == "" {
		return nil, failure("empty_password")
	}

	info, err := deps.SignIn(ctx, email, password)
	deps.AuthChanged()
	if err != nil {
		if autherr.KindOf(err) == autherr.KindInvalidCredentials {
			return nil, failure("invalid_credentials")
		}
		deps.MetricInc(deps.Metrics.BackendFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", email, err, func() map[string]string {
			return map[string]string{"reason": "backend_error"}
		})
		return nil, err
	}

	deps.ResetAttempts(ctx, key)
	deps.MetricInc(deps.Metrics.LoginSuccess)

	res := &LoginResult{}
	if info != nil {
		res.Identity = info.Identity
		res.ExpiresAt = info.ExpiresAt
	}
	var userID string
	if res.Identity != nil {
		userID = res.Identity.ID
	}
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, userID, email, nil, nil)
	return res, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
