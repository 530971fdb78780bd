// Package ginguard mounts the gates and login throttling of a middleware.Sessions
// registry on gin routers. It mirrors package middleware: denials answer 303 to the
// decision's redirect target with the notice in the X-Auth-Notice header.
package ginguard

import (
	"errors"
	"net/http"
	"strconv"

	loanGuard "github.com/MrEthical07/loanGuard"
	"github.com/MrEthical07/loanGuard/gate"
	"github.com/MrEthical07/loanGuard/middleware"
	"github.com/MrEthical07/loanGuard/ratelimit"
	"github.com/MrEthical07/loanGuard/session"
	"github.com/gin-gonic/gin"
)

const decisionKey = "loanguard.decision"

// Decision returns the decision stored by RequireAuth or RequireAdmin.
func Decision(c *gin.Context) (gate.Decision, bool) {
	v, ok := c.Get(decisionKey)
	if !ok {
		return gate.Decision{}, false
	}
	d, ok := v.(gate.Decision)
	return d, ok
}

// Identity returns the authenticated identity of the request, or nil.
func Identity(c *gin.Context) *session.Identity {
	d, ok := Decision(c)
	if !ok {
		return nil
	}
	return d.Identity
}

// RequireAuth aborts requests whose session cookie maps to no live session.
func RequireAuth(sessions *middleware.Sessions) gin.HandlerFunc {
	return guard(sessions, middleware.CheckAuth)
}

// RequireAdmin aborts requests that are unauthenticated or not privileged.
func RequireAdmin(sessions *middleware.Sessions) gin.HandlerFunc {
	return guard(sessions, middleware.CheckAdmin)
}

func guard(sessions *middleware.Sessions, check middleware.Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessions == nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		ctx := loanGuard.WithClientIP(c.Request.Context(), c.ClientIP())
		d := sessions.Authorize(ctx, c.Writer, c.Request, check)
		if !d.Allowed() {
			deny(c, d)
			return
		}

		c.Set(decisionKey, d)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func deny(c *gin.Context, d gate.Decision) {
	if d.Notice != gate.NoticeNone {
		c.Header(middleware.NoticeHeader, string(d.Notice))
	}
	target := d.Redirect
	if target == "" {
		target = "/"
	}
	c.Redirect(http.StatusSeeOther, target)
	c.Abort()
}

// Login signs in with the "email" and "password" form fields and sets the session
// cookie. It answers 204 on success, 429 while blocked and 401 otherwise.
func Login(sessions *middleware.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := loanGuard.WithClientIP(c.Request.Context(), c.ClientIP())
		_, err := sessions.SignIn(ctx, c.Writer, c.Request, c.PostForm("email"), c.PostForm("password"))
		var blocked *loanGuard.LoginBlockedError
		switch {
		case err == nil:
			c.Status(http.StatusNoContent)
		case errors.As(err, &blocked):
			abortRateLimited(c, blocked.Minutes)
		case errors.Is(err, loanGuard.ErrInvalidCredentials):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth_unavailable"})
		}
	}
}

// Logout ends the session and redirects to target.
func Logout(sessions *middleware.Sessions, target string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := loanGuard.WithClientIP(c.Request.Context(), c.ClientIP())
		if err := sessions.SignOut(ctx, c.Writer, c.Request); err != nil {
			c.Header(middleware.NoticeHeader, string(gate.NoticeAuthError))
		}
		c.Redirect(http.StatusSeeOther, target)
	}
}

// LoginRateLimit aborts login submissions for blocked keys with 429. A nil keyFn
// keys on the "email" form field.
func LoginRateLimit(sessions *middleware.Sessions, keyFn func(*gin.Context) string) gin.HandlerFunc {
	engine := sessions.Anonymous()
	if keyFn == nil {
		keyFn = func(c *gin.Context) string {
			return ratelimit.LoginKey(c.PostForm("email"))
		}
	}
	return func(c *gin.Context) {
		key := keyFn(c)
		if !engine.IsRateLimited(c.Request.Context(), key) {
			c.Next()
			return
		}

		abortRateLimited(c, engine.BlockedTimeRemaining(c.Request.Context(), key))
	}
}

func abortRateLimited(c *gin.Context, minutes int) {
	c.Header(middleware.NoticeHeader, middleware.NoticeRateLimited)
	c.Header("Retry-After", strconv.Itoa(minutes*60))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":               middleware.NoticeRateLimited,
		"retry_after_minutes": minutes,
	})
}
