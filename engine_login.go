package loanGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/loanGuard/internal/flows"
	"github.com/MrEthical07/loanGuard/ratelimit"
	"go.uber.org/zap"
)

// Login signs in through the backend behind the attempt ledger keyed on the email.
//
// A blocked key returns a *LoginBlockedError without contacting the backend. A
// credential rejection records an attempt and returns ErrInvalidCredentials, or a
// *LoginBlockedError when that attempt exhausted the budget. Backend outages are
// returned as is and do not count. Success forgives the key.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil || !e.flow.Initialized() {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.Login(ctx, email, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrLoginRateLimited) {
			e.logger.Warn("login failed", zap.Error(err))
		}
		return nil, err
	}
	return &LoginResult{Identity: res.Identity, ExpiresAt: res.ExpiresAt}, nil
}

// Logout signs out. Local state is cleared and the caches invalidated even when the
// backend call fails; that failure is still returned.
func (e *Engine) Logout(ctx context.Context) error {
	if e == nil || !e.flow.Initialized() {
		return ErrEngineNotReady
	}
	return e.flow.Logout(ctx)
}

// forceSignOut is the gate's sign-out for expired sessions.
func (e *Engine) forceSignOut(ctx context.Context) error {
	err := e.backend.SignOut(ctx)
	e.authChanged()
	if err != nil {
		e.logger.Warn("forced sign-out failed remotely", zap.Error(err))
	}
	return err
}

func (e *Engine) flowDeps() flows.Deps {
	metricInc := func(id int) { e.metricInc(MetricID(id)) }

	return flows.Deps{
		Login: flows.LoginDeps{
			Key:               ratelimit.LoginKey,
			IsRateLimited:     e.limiter.IsRateLimited,
			Attempt:           e.limiter.Attempt,
			ResetAttempts:     e.limiter.Reset,
			BlockedMinutes:    e.limiter.BlockedTimeRemaining,
			RemainingAttempts: e.limiter.RemainingAttempts,
			SignIn:            e.backend.SignIn,
			AuthChanged:       e.authChanged,
			MetricInc:         metricInc,
			EmitAudit:         e.emitAudit,
			Metrics: flows.LoginMetrics{
				LoginSuccess:     int(MetricLoginSuccess),
				LoginFailure:     int(MetricLoginFailure),
				LoginRateLimited: int(MetricLoginRateLimited),
				LoginBlocked:     int(MetricLoginBlocked),
				BackendFailure:   int(MetricBackendFailure),
			},
			Events: flows.LoginEvents{
				LoginSuccess:     auditEventLoginSuccess,
				LoginFailure:     auditEventLoginFailure,
				LoginRateLimited: auditEventLoginRateLimited,
			},
			Errors: flows.LoginErrors{
				EngineNotReady:     ErrEngineNotReady,
				InvalidCredentials: ErrInvalidCredentials,
				RateLimited: func(minutes int) error {
					return &LoginBlockedError{Minutes: minutes}
				},
			},
		},
		Logout: flows.LogoutDeps{
			CurrentUserID: func() string {
				if id, _ := e.sessions.Peek(); id != nil {
					return id.ID
				}
				return ""
			},
			SignOut:     e.backend.SignOut,
			AuthChanged: e.authChanged,
			MetricInc:   metricInc,
			EmitAudit:   e.emitAudit,
			LogoutEvent: auditEventLogout,
			LogoutCount: int(MetricLogout),
		},
	}
}
