package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	loanGuard "github.com/MrEthical07/loanGuard"
	"github.com/MrEthical07/loanGuard/gate"
	"github.com/MrEthical07/loanGuard/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionCookie is the default name of the cookie that binds a client to its engine.
const SessionCookie = "loanguard_session"

// DefaultIdleTimeout is how long an unused session is kept.
const DefaultIdleTimeout = 12 * time.Hour

// EngineFactory builds the engine behind one client session. Every engine it returns
// must own its backend session and share one attempt ledger with the others
// (Builder.WithRedis or Builder.WithStore), so throttling holds across sessions.
type EngineFactory func() (*loanGuard.Engine, error)

// SessionOptions tunes Sessions. Zero values select the defaults.
type SessionOptions struct {
	CookieName  string
	Secure      bool
	IdleTimeout time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

// Check runs one or both gates against an engine.
type Check func(*loanGuard.Engine, context.Context, gate.Effects) gate.Decision

var (
	CheckAuth  Check = (*loanGuard.Engine).RequireAuth
	CheckAdmin Check = (*loanGuard.Engine).RequireAdmin
)

type sessionEntry struct {
	engine   *loanGuard.Engine
	lastSeen time.Time
}

// Sessions maps session cookies to engines. A request without a known cookie never
// reaches an engine that holds a signed-in backend session. It is safe for
// concurrent use.
type Sessions struct {
	factory   EngineFactory
	anonymous *loanGuard.Engine
	loginPath string

	cookie string
	secure bool
	idle   time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

// NewSessions builds the anonymous engine from factory and returns an empty registry.
func NewSessions(factory EngineFactory, opts SessionOptions) (*Sessions, error) {
	if factory == nil {
		return nil, errors.New("middleware: nil engine factory")
	}
	anonymous, err := factory()
	if err != nil {
		return nil, err
	}
	if opts.CookieName == "" {
		opts.CookieName = SessionCookie
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sessions{
		factory:   factory,
		anonymous: anonymous,
		loginPath: anonymous.Config().Gate.LoginPath,
		cookie:    opts.CookieName,
		secure:    opts.Secure,
		idle:      opts.IdleTimeout,
		logger:    logging.OrNop(opts.Logger),
		now:       opts.Now,
		entries:   make(map[string]*sessionEntry),
	}, nil
}

// Anonymous returns the engine that serves requests with no session: login
// throttling, metrics and config. Never sign in through it.
func (s *Sessions) Anonymous() *loanGuard.Engine {
	return s.anonymous
}

// Lookup returns the engine bound to r's session cookie.
func (s *Sessions) Lookup(r *http.Request) (*loanGuard.Engine, bool) {
	_, engine, ok := s.lookup(r)
	return engine, ok
}

func (s *Sessions) lookup(r *http.Request) (string, *loanGuard.Engine, bool) {
	c, err := r.Cookie(s.cookie)
	if err != nil || c.Value == "" {
		return "", nil, false
	}
	now := s.now()

	s.mu.Lock()
	entry, ok := s.entries[c.Value]
	if ok && now.Sub(entry.lastSeen) > s.idle {
		delete(s.entries, c.Value)
		s.mu.Unlock()
		entry.engine.Close()
		return "", nil, false
	}
	if ok {
		entry.lastSeen = now
	}
	s.mu.Unlock()

	if !ok {
		return "", nil, false
	}
	return c.Value, entry.engine, true
}

// Authorize runs check against r's session. A request without a session is denied
// as unauthenticated without touching any engine. A session the gate finds signed
// out or expired is dropped and its cookie cleared.
func (s *Sessions) Authorize(ctx context.Context, w http.ResponseWriter, r *http.Request, check Check) gate.Decision {
	sid, engine, ok := s.lookup(r)
	if !ok {
		return gate.Decision{
			State:    gate.Denied,
			Reason:   gate.ReasonUnauthenticated,
			Notice:   gate.NoticeLoginRequired,
			Redirect: s.loginPath,
		}
	}

	d := check(engine, ctx, gate.Effects{})
	if d.Reason == gate.ReasonUnauthenticated || d.Reason == gate.ReasonSessionExpired {
		s.discard(sid)
		s.clearCookie(w)
	}
	return d
}

// SignIn logs in on a fresh engine and binds it to a new session cookie. A session
// the client already held is signed out first. On failure no cookie is set.
func (s *Sessions) SignIn(ctx context.Context, w http.ResponseWriter, r *http.Request, email, password string) (*loanGuard.LoginResult, error) {
	engine, err := s.factory()
	if err != nil {
		return nil, err
	}
	res, err := engine.Login(ctx, email, password)
	if err != nil {
		engine.Close()
		return nil, err
	}

	if prev, old, ok := s.lookup(r); ok {
		s.discard(prev)
		s.logout(ctx, old)
	}
	s.prune()

	sid := uuid.NewString()
	s.mu.Lock()
	s.entries[sid] = &sessionEntry{engine: engine, lastSeen: s.now()}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return res, nil
}

// SignOut ends r's session and clears its cookie. A remote sign-out failure is
// logged and returned; the session is gone locally either way.
func (s *Sessions) SignOut(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	s.clearCookie(w)
	sid, engine, ok := s.lookup(r)
	if !ok {
		return nil
	}
	s.discard(sid)
	return s.logout(ctx, engine)
}

func (s *Sessions) logout(ctx context.Context, engine *loanGuard.Engine) error {
	defer engine.Close()
	err := engine.Logout(ctx)
	if err != nil {
		engine.Logger().Warn("sign-out failed remotely, local session cleared", zap.Error(err))
	}
	return err
}

// discard forgets sid and closes its engine without a remote sign-out.
func (s *Sessions) discard(sid string) {
	s.mu.Lock()
	entry, ok := s.entries[sid]
	delete(s.entries, sid)
	s.mu.Unlock()
	if ok {
		entry.engine.Close()
	}
}

// prune closes sessions idle for longer than the idle timeout.
func (s *Sessions) prune() {
	now := s.now()
	var stale []*loanGuard.Engine

	s.mu.Lock()
	for sid, entry := range s.entries {
		if now.Sub(entry.lastSeen) > s.idle {
			stale = append(stale, entry.engine)
			delete(s.entries, sid)
		}
	}
	s.mu.Unlock()

	for _, engine := range stale {
		engine.Close()
	}
	if len(stale) > 0 {
		s.logger.Debug("idle sessions closed", zap.Int("count", len(stale)))
	}
}

func (s *Sessions) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close closes every session engine and the anonymous engine. Backend sessions are
// not signed out.
func (s *Sessions) Close() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*sessionEntry)
	s.mu.Unlock()

	for _, entry := range entries {
		entry.engine.Close()
	}
	s.anonymous.Close()
}
