package middleware

import (
	"context"
	"net"
	"net/http"

	loanGuard "github.com/MrEthical07/loanGuard"
	"github.com/MrEthical07/loanGuard/gate"
	"github.com/MrEthical07/loanGuard/session"
)

// NoticeHeader carries the denial notice to the client.
const NoticeHeader = "X-Auth-Notice"

type decisionContextKey struct{}

// DecisionFromContext returns the decision that let the request through.
func DecisionFromContext(ctx context.Context) (gate.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(gate.Decision)
	return d, ok
}

// IdentityFromContext returns the identity of an authenticated request.
func IdentityFromContext(ctx context.Context) (*session.Identity, bool) {
	d, ok := DecisionFromContext(ctx)
	if !ok || d.Identity == nil {
		return nil, false
	}
	return d.Identity, true
}

// RequireAuth admits only requests whose session cookie maps to a live session.
func RequireAuth(sessions *Sessions) func(http.Handler) http.Handler {
	return guard(sessions, CheckAuth)
}

// RequireAdmin admits only authenticated requests whose role is privileged.
func RequireAdmin(sessions *Sessions) func(http.Handler) http.Handler {
	return guard(sessions, CheckAdmin)
}

func guard(sessions *Sessions, check Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessions == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithRequestIP(r)
			d := sessions.Authorize(ctx, w, r, check)
			if !d.Allowed() {
				Deny(w, r, d)
				return
			}

			ctx = context.WithValue(ctx, decisionContextKey{}, d)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Deny writes a denial: the notice header and a 303 to the redirect target.
func Deny(w http.ResponseWriter, r *http.Request, d gate.Decision) {
	if d.Notice != gate.NoticeNone {
		w.Header().Set(NoticeHeader, string(d.Notice))
	}
	target := d.Redirect
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// WithRequestIP returns r's context carrying the remote address for audit events.
func WithRequestIP(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return r.Context()
	}
	return loanGuard.WithClientIP(r.Context(), host)
}
