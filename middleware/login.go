package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	loanGuard "github.com/MrEthical07/loanGuard"
	"github.com/MrEthical07/loanGuard/gate"
	"github.com/MrEthical07/loanGuard/ratelimit"
)

// NoticeRateLimited is the notice sent with a throttled login.
const NoticeRateLimited = "rate_limited"

// KeyFunc derives the throttling key of a login request.
type KeyFunc func(r *http.Request) string

// EmailFormKey keys on the "email" form field.
func EmailFormKey(r *http.Request) string {
	return ratelimit.LoginKey(r.FormValue("email"))
}

// LoginRateLimit answers 429 for blocked keys without calling next. A nil keyFn
// selects EmailFormKey.
func LoginRateLimit(sessions *Sessions, keyFn KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = EmailFormKey
	}
	engine := sessions.Anonymous()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if engine.IsRateLimited(r.Context(), key) {
				writeRateLimited(w, engine.BlockedTimeRemaining(r.Context(), key))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type loginResponse struct {
	UserID         string    `json:"user_id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitempty"`
}

type errorResponse struct {
	Error             string `json:"error"`
	RetryAfterMinutes int    `json:"retry_after_minutes,omitempty"`
}

// LoginHandler signs in with the "email" and "password" form fields, sets the
// session cookie on success and answers JSON.
func LoginHandler(sessions *Sessions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"})
			return
		}

		res, err := sessions.SignIn(WithRequestIP(r), w, r, r.FormValue("email"), r.FormValue("password"))
		var blocked *loanGuard.LoginBlockedError
		switch {
		case err == nil:
			out := loginResponse{ExpiresAt: res.ExpiresAt}
			if res.Identity != nil {
				out.UserID = res.Identity.ID
				out.OrganizationID = res.Identity.OrganizationID
			}
			writeJSON(w, http.StatusOK, out)
		case errors.As(err, &blocked):
			writeRateLimited(w, blocked.Minutes)
		case errors.Is(err, loanGuard.ErrInvalidCredentials):
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid_credentials"})
		default:
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "auth_unavailable"})
		}
	})
}

// LogoutHandler ends the session and redirects to target. SignOut logs a remote
// failure; the client is signed out locally either way and always redirected.
func LogoutHandler(sessions *Sessions, target string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := sessions.SignOut(WithRequestIP(r), w, r); err != nil {
			w.Header().Set(NoticeHeader, string(gate.NoticeAuthError))
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	})
}

func writeRateLimited(w http.ResponseWriter, minutes int) {
	w.Header().Set(NoticeHeader, NoticeRateLimited)
	w.Header().Set("Retry-After", strconv.Itoa(minutes*60))
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: NoticeRateLimited, RetryAfterMinutes: minutes})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
