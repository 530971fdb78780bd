package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/loanGuard/autherr"
	"github.com/MrEthical07/loanGuard/internal/logging"
	"github.com/MrEthical07/loanGuard/jwt"
	"github.com/MrEthical07/loanGuard/session"
	"go.uber.org/zap"
)

const (
	pathUser     = "/auth/v1/user"
	pathToken    = "/auth/v1/token"
	pathLogout   = "/auth/v1/logout"
	pathRoleRPC  = "/rest/v1/rpc/get_user_role"
	maxBodyBytes = 1 << 20

	defaultTimeout = 15 * time.Second
)

// ErrNoRole is returned by RoleFor when the backend has no role for the user.
var ErrNoRole = errors.New("backend: no role for user")

// Config configures a Client.
type Config struct {
	// BaseURL is the project URL, e.g. https://xyz.example.co.
	BaseURL string
	// APIKey is the public anon key sent as the apikey header.
	APIKey string
	// Timeout bounds each request when HTTPClient is nil.
	Timeout    time.Duration
	HTTPClient *http.Client
	// Inspector validates access tokens locally. When nil the token response expiry
	// is trusted instead.
	Inspector *jwt.Inspector
	Logger    *zap.Logger
	Now       func() time.Time
}

// Client talks to the hosted auth REST API. It is safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	inspector *jwt.Inspector
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.RWMutex
	current *SessionInfo

	subsMu  sync.Mutex
	subs    map[uint64]func(session.Event)
	nextSub uint64
}

// New validates cfg and returns a Client with no session.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: invalid base url %q", cfg.BaseURL)
	}
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		http:      cfg.HTTPClient,
		inspector: cfg.Inspector,
		logger:    logging.OrNop(cfg.Logger),
		now:       cfg.Now,
		subs:      make(map[uint64]func(session.Event)),
	}, nil
}

// Session returns a copy of the current session, or nil.
func (c *Client) Session() *SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.clone()
}

// Restore installs a previously obtained session, e.g. one read from a cookie, and
// announces it as a sign-in.
func (c *Client) Restore(info *SessionInfo) {
	c.setSession(info.clone(), session.EventSignedIn)
}

// CurrentIdentity asks the backend who owns the current access token. It returns nil
// when there is no session or the backend rejects the token.
func (c *Client) CurrentIdentity(ctx context.Context) (*session.Identity, error) {
	cur := c.Session()
	if cur == nil || cur.AccessToken == "" {
		return nil, nil
	}

	var user userPayload
	status, err := c.do(ctx, http.MethodGet, pathUser, nil, cur.AccessToken, &user)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, nil
		}
		return nil, autherr.New(autherr.KindLookupFailed, "backend.CurrentIdentity", err)
	}
	return user.identity(), nil
}

// ValidateSession checks the current session token. An expired token is refreshed
// when a refresh token is held. It returns nil when no valid session remains.
func (c *Client) ValidateSession(ctx context.Context) (*SessionInfo, error) {
	cur := c.Session()
	if cur == nil || cur.AccessToken == "" {
		return nil, nil
	}

	expired, err := c.expired(cur)
	if err != nil {
		c.logger.Debug("session token rejected", zap.Error(err))
		return nil, nil
	}
	if !expired {
		return cur, nil
	}
	if cur.RefreshToken == "" {
		return nil, nil
	}
	return c.refresh(ctx, cur.RefreshToken)
}

// RoleFor calls the get_user_role procedure for userID within organizationID.
func (c *Client) RoleFor(ctx context.Context, userID, organizationID string) (string, error) {
	cur := c.Session()
	token := c.apiKey
	if cur != nil && cur.AccessToken != "" {
		token = cur.AccessToken
	}

	var name *string
	if _, err := c.do(ctx, http.MethodPost, pathRoleRPC, roleRequest{UserID: userID, OrganizationID: organizationID}, token, &name); err != nil {
		return "", autherr.New(autherr.KindLookupFailed, "backend.RoleFor", err)
	}
	if name == nil || *name == "" {
		return "", ErrNoRole
	}
	return *name, nil
}

// SignIn exchanges credentials for a session. Every credential rejection is reported
// as autherr.KindInvalidCredentials without detail.
func (c *Client) SignIn(ctx context.Context, email, password string) (*SessionInfo, error) {
	var tok tokenResponse
	status, err := c.do(ctx, http.MethodPost, pathToken+"?grant_type=password", passwordGrant{Email: email, Password: password}, c.apiKey, &tok)
	if err != nil {
		if status == http.StatusTooManyRequests {
			return nil, autherr.New(autherr.KindRateLimited, "backend.SignIn", err)
		}
		if status >= 400 && status < 500 {
			c.logger.Debug("sign-in rejected",
				zap.String("email", logging.MaskEmail(email)),
				zap.Int("status", status),
			)
			return nil, autherr.New(autherr.KindInvalidCredentials, "backend.SignIn", nil)
		}
		return nil, autherr.New(autherr.KindUnavailable, "backend.SignIn", err)
	}
	if tok.AccessToken == "" {
		return nil, autherr.New(autherr.KindUnavailable, "backend.SignIn", errors.New("token response without access token"))
	}

	info := tok.session(c.now())
	c.setSession(info, session.EventSignedIn)
	return info.clone(), nil
}

// SignOut revokes the session remotely and always drops it locally. The remote error,
// if any, is returned after the local state is cleared.
func (c *Client) SignOut(ctx context.Context) error {
	cur := c.Session()
	c.setSession(nil, session.EventSignedOut)
	if cur == nil || cur.AccessToken == "" {
		return nil
	}

	if _, err := c.do(ctx, http.MethodPost, pathLogout, nil, cur.AccessToken, nil); err != nil {
		return autherr.New(autherr.KindUnavailable, "backend.SignOut", err)
	}
	return nil
}

// SubscribeAuthState registers fn for SIGNED_IN, SIGNED_OUT and TOKEN_REFRESHED events.
// Events are delivered synchronously on the goroutine that changed the session.
func (c *Client) SubscribeAuthState(fn func(session.Event)) (cancel func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*SessionInfo, error) {
	var tok tokenResponse
	status, err := c.do(ctx, http.MethodPost, pathToken+"?grant_type=refresh_token", refreshGrant{RefreshToken: refreshToken}, c.apiKey, &tok)
	if err != nil {
		if status >= 400 && status < 500 {
			c.setSession(nil, session.EventSignedOut)
			return nil, nil
		}
		return nil, autherr.New(autherr.KindLookupFailed, "backend.ValidateSession", err)
	}

	info := tok.session(c.now())
	if info.Identity == nil {
		if cur := c.Session(); cur != nil {
			info.Identity = cur.Identity
		}
	}
	c.setSession(info, session.EventTokenRefreshed)
	return info.clone(), nil
}

func (c *Client) expired(s *SessionInfo) (bool, error) {
	if c.inspector != nil {
		_, err := c.inspector.Inspect(s.AccessToken)
		if errors.Is(err, jwt.ErrExpired) {
			return true, nil
		}
		return false, err
	}
	return !s.ExpiresAt.IsZero() && !c.now().Before(s.ExpiresAt), nil
}

func (c *Client) setSession(info *SessionInfo, kind session.EventType) {
	c.mu.Lock()
	c.current = info
	c.mu.Unlock()

	ev := session.Event{Type: kind, At: c.now()}
	if info != nil {
		ev.Identity = info.Identity
	}
	c.emit(ev)
}

func (c *Client) emit(ev session.Event) {
	c.subsMu.Lock()
	fns := make([]func(session.Event), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// do sends a JSON request and decodes a JSON response into out. On a non-2xx status it
// returns the status and an error carrying the backend message.
func (c *Client) do(ctx context.Context, method, path string, body any, bearer string, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Message: errorMessage(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// StatusError is a non-2xx backend reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend status %d", e.Code)
	}
	return fmt.Sprintf("backend status %d: %s", e.Code, e.Message)
}

func errorMessage(body []byte) string {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	for _, s := range []string{payload.ErrorDescription, payload.Msg, payload.Message, payload.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}
