package loanGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/loanGuard/autherr"
	"github.com/MrEthical07/loanGuard/gate"
)

// RequireAuth runs the auth gate once. fx receives the state transitions, the
// denial notice and the redirect target; a zero Effects is valid.
func (e *Engine) RequireAuth(ctx context.Context, fx gate.Effects) gate.Decision {
	return e.authGate.Check(ctx, fx)
}

// RequireAdmin runs the auth gate and, only when it allows, the admin gate. The
// returned decision is the first denial or the admin decision.
func (e *Engine) RequireAdmin(ctx context.Context, fx gate.Effects) gate.Decision {
	d := e.authGate.Check(ctx, gate.Effects{OnState: fx.OnState})
	if !d.Allowed() {
		if fx.Notify != nil && d.Notice != gate.NoticeNone {
			fx.Notify(d.Notice)
		}
		if fx.Redirect != nil && d.Redirect != "" {
			fx.Redirect(d.Redirect)
		}
		return d
	}
	ad := e.adminGate.Check(ctx, fx)
	ad.Identity = d.Identity
	return ad
}

// AuthGate exposes the underlying auth gate.
func (e *Engine) AuthGate() *gate.Gate {
	return e.authGate
}

func (e *Engine) AdminGate() *gate.AdminGate {
	return e.adminGate
}

func (e *Engine) observeGate(kind gate.Kind, d gate.Decision, elapsed time.Duration) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricGateLatency, elapsed)
	}

	if kind == gate.KindAdmin {
		if d.Allowed() {
			e.metricInc(MetricAdminAllowed)
			return
		}
		e.metricInc(MetricAdminDenied)
		e.emitGateDenied(auditEventAdminGateDenied, d)
		return
	}

	if d.Allowed() {
		e.metricInc(MetricGateAllowed)
		return
	}
	e.metricInc(MetricGateDenied)
	switch d.Reason {
	case gate.ReasonTimeout:
		e.metricInc(MetricGateTimeout)
	case gate.ReasonLookupFailed:
		e.metricInc(MetricGateLookupFailed)
	}
	e.emitGateDenied(auditEventGateDenied, d)
}

func (e *Engine) emitGateDenied(event string, d gate.Decision) {
	var userID string
	if d.Identity != nil {
		userID = d.Identity.ID
	}
	e.emitAudit(context.Background(), event, false, userID, "", reasonError(d), func() map[string]string {
		md := map[string]string{
			"gate_id": d.ID,
			"reason":  d.Reason.String(),
		}
		if d.Role != "" {
			md["role"] = string(d.Role)
		}
		return md
	})
}

func reasonError(d gate.Decision) error {
	switch d.Reason {
	case gate.ReasonUnauthenticated:
		return autherr.ErrUnauthenticated
	case gate.ReasonSessionExpired:
		return autherr.ErrSessionExpired
	case gate.ReasonForbidden:
		return autherr.ErrUnauthorized
	case gate.ReasonTimeout:
		return autherr.ErrTimeout
	case gate.ReasonLookupFailed:
		return autherr.ErrLookupFailed
	default:
		return d.Err
	}
}
