package loanGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/loanGuard/backend"
	"github.com/MrEthical07/loanGuard/session"
)

// Backend is the hosted auth service the engine drives. *backend.Client implements it.
type Backend interface {
	// CurrentIdentity returns the signed-in identity, or nil when nobody is signed in.
	CurrentIdentity(ctx context.Context) (*session.Identity, error)
	// ValidateSession returns the live session, refreshing it if needed, or nil when
	// the session is gone or expired.
	ValidateSession(ctx context.Context) (*backend.SessionInfo, error)
	RoleFor(ctx context.Context, userID, organizationID string) (string, error)
	SignIn(ctx context.Context, email, password string) (*backend.SessionInfo, error)
	// SignOut drops the local session even when the remote call fails.
	SignOut(ctx context.Context) error
	SubscribeAuthState(fn func(session.Event)) (cancel func())
}

var _ Backend = (*backend.Client)(nil)

// LoginResult is returned by a successful Engine.Login.
type LoginResult struct {
	Identity  *session.Identity
	ExpiresAt time.Time
}
