package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	loanGuard "github.com/MrEthical07/loanGuard"
	"github.com/MrEthical07/loanGuard/internal/authtest"
	"github.com/MrEthical07/loanGuard/ratelimit"
	"github.com/MrEthical07/loanGuard/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// testRig builds one engine per session over a shared ledger, each with its own
// in-process backend for the same account.
type testRig struct {
	sessions *Sessions
	role     string

	mu       sync.Mutex
	backends []*authtest.Backend
}

func newTestRig(t *testing.T, role string, logger *zap.Logger) *testRig {
	t.Helper()
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	rig := &testRig{role: role}
	store := ratelimit.NewMemoryStore()
	metrics := loanGuard.NewMetrics(loanGuard.MetricsConfig{Enabled: true})

	factory := func() (*loanGuard.Engine, error) {
		be := authtest.NewBackend(
			&session.Identity{ID: "u-1", Email: "kofi@lender.example", OrganizationID: "org-1"},
			"s3cret-pass",
			rig.role,
		)
		rig.mu.Lock()
		rig.backends = append(rig.backends, be)
		rig.mu.Unlock()
		return loanGuard.New().
			WithBackend(be).
			WithStore(store).
			WithMetrics(metrics).
			WithLogger(logger).
			Build()
	}

	sessions, err := NewSessions(factory, SessionOptions{})
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	t.Cleanup(sessions.Close)
	rig.sessions = sessions
	return rig
}

// latest returns the backend of the most recently built engine.
func (r *testRig) latest() *authtest.Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backends[len(r.backends)-1]
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("expected identity in request context")
			return
		}
		_, _ = w.Write([]byte(id.ID))
	})
}

func postForm(h http.Handler, email, password string) *httptest.ResponseRecorder {
	return postFormFrom(h, "198.51.100.4:51234", email, password)
}

func postFormFrom(h http.Handler, remote, email, password string) *httptest.ResponseRecorder {
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in response, headers %v", rec.Header())
	return nil
}

func get(h http.Handler, path, remote string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func signIn(t *testing.T, rig *testRig) *http.Cookie {
	t.Helper()
	rec := postForm(LoginHandler(rig.sessions), "kofi@lender.example", "s3cret-pass")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}
	return sessionCookie(t, rec)
}

func TestRequireAuthRedirectsAnonymous(t *testing.T) {
	rig := newTestRig(t, "viewer", nil)
	h := RequireAuth(rig.sessions)(okHandler(t))

	rec := get(h, "/loans", "203.0.113.9:4000", nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/login" {
		t.Fatalf("expected redirect to /login, got %q", got)
	}
	if got := rec.Header().Get(NoticeHeader); got != "login_required" {
		t.Fatalf("unexpected notice %q", got)
	}
}

func TestRequireAuthAdmitsSignedIn(t *testing.T) {
	rig := newTestRig(t, "viewer", nil)
	cookie := signIn(t, rig)
	h := RequireAuth(rig.sessions)(okHandler(t))

	rec := get(h, "/loans", "198.51.100.4:51234", cookie)
	if rec.Code != http.StatusOK || rec.Body.String() != "u-1" {
		t.Fatalf("expected 200 with identity, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestSignedInClientDoesNotAdmitOthers(t *testing.T) {
	rig := newTestRig(t, "admin", nil)
	mux := http.NewServeMux()
	mux.Handle("/login", LoginHandler(rig.sessions))
	mux.Handle("/admin", RequireAdmin(rig.sessions)(okHandler(t)))
	mux.Handle("/loans", RequireAuth(rig.sessions)(okHandler(t)))

	// Client A signs in as an admin.
	rec := postFormFrom(mux, "10.0.0.1:3000", "kofi@lender.example", "s3cret-pass")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}
	cookie := sessionCookie(t, rec)
	if !cookie.HttpOnly || cookie.Path != "/" || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie attributes %+v", cookie)
	}

	// Client B never signed in.
	for _, path := range []string{"/admin", "/loans"} {
		rec = get(mux, path, "203.0.113.9:4000", nil)
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
			t.Fatalf("anonymous %s: expected redirect to /login, got %d %q", path, rec.Code, rec.Header().Get("Location"))
		}
	}

	// A forged cookie is as good as none.
	rec = get(mux, "/admin", "203.0.113.9:4000", &http.Cookie{Name: SessionCookie, Value: "not-a-session"})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("unknown cookie: expected redirect to /login, got %d", rec.Code)
	}

	rec = get(mux, "/admin", "10.0.0.1:3000", cookie)
	if rec.Code != http.StatusOK || rec.Body.String() != "u-1" {
		t.Fatalf("signed-in admin: expected 200, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequireAdmin(t *testing.T) {
	rig := newTestRig(t, "collector", nil)
	cookie := signIn(t, rig)
	h := RequireAdmin(rig.sessions)(okHandler(t))

	rec := get(h, "/admin/users", "198.51.100.4:51234", cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to default view, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if got := rec.Header().Get(NoticeHeader); got != "forbidden" {
		t.Fatalf("unexpected notice %q", got)
	}
	if rig.sessions.Len() != 1 {
		t.Fatal("a forbidden request must keep the session")
	}

	rig.latest().SetRole("admin")
	engine, ok := rig.sessions.Lookup(httptestRequestWithCookie(cookie))
	if !ok {
		t.Fatal("session vanished")
	}
	engine.ClearRoleCache()

	rec = get(h, "/admin/users", "198.51.100.4:51234", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin to pass, got %d", rec.Code)
	}
}

func httptestRequestWithCookie(c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	return req
}

func TestExpiredSessionIsDropped(t *testing.T) {
	rig := newTestRig(t, "viewer", nil)
	cookie := signIn(t, rig)
	h := RequireAuth(rig.sessions)(okHandler(t))

	engine, _ := rig.sessions.Lookup(httptestRequestWithCookie(cookie))
	rig.latest().Expire()
	engine.InvalidateSession()

	rec := get(h, "/loans", "198.51.100.4:51234", cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get(NoticeHeader) != "session_expired" {
		t.Fatalf("expected session_expired redirect, got %d %q", rec.Code, rec.Header().Get(NoticeHeader))
	}
	if rig.sessions.Len() != 0 {
		t.Fatalf("expired session must be dropped, %d left", rig.sessions.Len())
	}
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("expected the session cookie to be cleared")
	}
}

func TestLoginHandlerLocksOut(t *testing.T) {
	rig := newTestRig(t, "viewer", nil)
	h := LoginRateLimit(rig.sessions, nil)(LoginHandler(rig.sessions))

	for i := 0; i < 4; i++ {
		if rec := postForm(h, "kofi@lender.example", "nope"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	rec := postForm(h, "kofi@lender.example", "nope")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the fifth failure, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1800" {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}

	rig.mu.Lock()
	built := len(rig.backends)
	rig.mu.Unlock()

	rec = postForm(h, "KOFI@lender.example", "s3cret-pass")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected blocked key to stay blocked, got %d", rec.Code)
	}
	rig.mu.Lock()
	if len(rig.backends) != built {
		t.Fatal("rate limited request must not reach a backend")
	}
	rig.mu.Unlock()
	if rig.sessions.Len() != 0 {
		t.Fatal("failed logins must not create sessions")
	}

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != NoticeRateLimited || body.RetryAfterMinutes != 30 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestLoginHandlerSuccessAndMethod(t *testing.T) {
	rig := newTestRig(t, "viewer", nil)
	h := LoginHandler(rig.sessions)

	rec := postForm(h, "kofi@lender.example", "s3cret-pass")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UserID != "u-1" || body.OrganizationID != "org-1" {
		t.Fatalf("unexpected body %+v", body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestLoginReplacesPreviousSession(t *testing.T) {
	rig := newTestRig(t, "viewer", nil)
	first := signIn(t, rig)
	firstBackend := rig.latest()

	form := url.Values{"email": {"kofi@lender.example"}, "password": {"s3cret-pass"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(first)
	rec := httptest.NewRecorder()
	LoginHandler(rig.sessions).ServeHTTP(rec, req)

	second := sessionCookie(t, rec)
	if second.Value == first.Value {
		t.Fatal("a new login must issue a new session id")
	}
	if rig.sessions.Len() != 1 {
		t.Fatalf("expected the old session to be replaced, %d live", rig.sessions.Len())
	}
	if firstBackend.Counts().SignOuts != 1 {
		t.Fatal("the replaced session must be signed out")
	}
}

func TestLogoutHandlerClearsSession(t *testing.T) {
	rig := newTestRig(t, "viewer", nil)
	cookie := signIn(t, rig)
	be := rig.latest()

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	LogoutHandler(rig.sessions, "/login").ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if rec.Header().Get(NoticeHeader) != "" {
		t.Fatalf("clean logout must not carry a notice, got %q", rec.Header().Get(NoticeHeader))
	}
	if be.Counts().SignOuts != 1 {
		t.Fatal("expected a backend sign-out")
	}

	h := RequireAuth(rig.sessions)(okHandler(t))
	if rec := get(h, "/loans", "198.51.100.4:51234", cookie); rec.Code != http.StatusSeeOther {
		t.Fatalf("old cookie must no longer admit, got %d", rec.Code)
	}
}

func TestLogoutHandlerLogsRemoteFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rig := newTestRig(t, "viewer", zap.New(core))
	cookie := signIn(t, rig)
	rig.latest().SetSignOutErr(errors.New("backend 502"))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	LogoutHandler(rig.sessions, "/login").ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if rec.Header().Get(NoticeHeader) != "auth_error" {
		t.Fatalf("expected auth_error notice, got %q", rec.Header().Get(NoticeHeader))
	}
	if rig.sessions.Len() != 0 {
		t.Fatal("session must be dropped locally even when the remote sign-out fails")
	}
	entries := logs.FilterMessageSnippet("sign-out failed").All()
	if len(entries) == 0 {
		t.Fatal("expected the remote sign-out failure to be logged")
	}
	if got := entries[0].ContextMap()["error"]; got != "backend 502" {
		t.Fatalf("unexpected logged error %v", got)
	}
}

func TestWithRequestIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if WithRequestIP(req) == req.Context() {
		t.Fatal("expected a derived context")
	}
}
