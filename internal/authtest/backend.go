// Package authtest provides an in-process auth backend for tests, examples and the
// load generator.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/loanGuard/autherr"
	"github.com/MrEthical07/loanGuard/backend"
	"github.com/MrEthical07/loanGuard/session"
)

// Backend holds one account and at most one signed-in session.
type Backend struct {
	mu sync.Mutex

	user     *session.Identity
	password string
	role     string
	roleErr  error
	latency  time.Duration

	signedIn    *session.Identity
	expired     bool
	identityErr error
	signInErr   error
	signOutErr  error

	counts Counts

	subs    map[int]func(session.Event)
	nextSub int
}

// Counts records how often each remote operation ran.
type Counts struct {
	SignIns       int
	SignOuts      int
	IdentityCalls int
	RoleCalls     int
	ValidateCalls int
}

// NewBackend creates a backend with a single account.
func NewBackend(user *session.Identity, password, role string) *Backend {
	return &Backend{
		user:     user,
		password: password,
		role:     role,
		subs:     make(map[int]func(session.Event)),
	}
}

// User returns the account identity.
func (b *Backend) User() *session.Identity {
	return b.user
}

func (b *Backend) CurrentIdentity(ctx context.Context) (*session.Identity, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts.IdentityCalls++
	if b.identityErr != nil {
		return nil, b.identityErr
	}
	return b.signedIn, nil
}

func (b *Backend) ValidateSession(ctx context.Context) (*backend.SessionInfo, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts.ValidateCalls++
	if b.signedIn == nil || b.expired {
		return nil, nil
	}
	return &backend.SessionInfo{AccessToken: "access", Identity: b.signedIn}, nil
}

func (b *Backend) RoleFor(ctx context.Context, _, _ string) (string, error) {
	if err := b.wait(ctx); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts.RoleCalls++
	if b.roleErr != nil {
		return "", b.roleErr
	}
	return b.role, nil
}

// SignIn accepts only the account's email, case-insensitively, and password.
func (b *Backend) SignIn(ctx context.Context, email, password string) (*backend.SessionInfo, error) {
	if err := b.wait(ctx); err != nil {
		return nil, autherr.New(autherr.KindUnavailable, "authtest.SignIn", err)
	}
	b.mu.Lock()
	b.counts.SignIns++
	if b.signInErr != nil {
		err := b.signInErr
		b.mu.Unlock()
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(email), b.user.Email) || password != b.password {
		b.mu.Unlock()
		return nil, autherr.New(autherr.KindInvalidCredentials, "authtest.SignIn", nil)
	}
	b.signedIn = b.user
	b.expired = false
	user := b.user
	b.mu.Unlock()

	b.Emit(session.Event{Type: session.EventSignedIn, Identity: user, At: time.Now()})
	return &backend.SessionInfo{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		Identity:     user,
	}, nil
}

// SignOut always drops the session, then returns the configured error.
func (b *Backend) SignOut(context.Context) error {
	b.mu.Lock()
	b.counts.SignOuts++
	b.signedIn = nil
	err := b.signOutErr
	b.mu.Unlock()

	b.Emit(session.Event{Type: session.EventSignedOut, At: time.Now()})
	return err
}

func (b *Backend) SubscribeAuthState(fn func(session.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Emit delivers ev to every subscriber outside the backend lock.
func (b *Backend) Emit(ev session.Event) {
	b.mu.Lock()
	subs := make([]func(session.Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Counts returns a copy of the call counters.
func (b *Backend) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// SetRole changes the role name returned by RoleFor.
func (b *Backend) SetRole(role string) {
	b.mu.Lock()
	b.role = role
	b.mu.Unlock()
}

func (b *Backend) SetRoleErr(err error) {
	b.mu.Lock()
	b.roleErr = err
	b.mu.Unlock()
}

// Expire makes ValidateSession report the current session as gone.
func (b *Backend) Expire() {
	b.mu.Lock()
	b.expired = true
	b.mu.Unlock()
}

// SignInDirect marks the account signed in without emitting an event.
func (b *Backend) SignInDirect() {
	b.mu.Lock()
	b.signedIn = b.user
	b.expired = false
	b.mu.Unlock()
}

func (b *Backend) SetIdentityErr(err error) {
	b.mu.Lock()
	b.identityErr = err
	b.mu.Unlock()
}

func (b *Backend) SetSignInErr(err error) {
	b.mu.Lock()
	b.signInErr = err
	b.mu.Unlock()
}

func (b *Backend) SetSignOutErr(err error) {
	b.mu.Lock()
	b.signOutErr = err
	b.mu.Unlock()
}

// SetLatency delays every remote read and sign-in by d, honoring ctx.
func (b *Backend) SetLatency(d time.Duration) {
	b.mu.Lock()
	b.latency = d
	b.mu.Unlock()
}

func (b *Backend) wait(ctx context.Context) error {
	b.mu.Lock()
	d := b.latency
	b.mu.Unlock()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
