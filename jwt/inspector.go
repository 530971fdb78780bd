package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects how tokens are verified.
type SigningMethod string

const (
	// MethodNone decodes claims without verifying the signature.
	MethodNone SigningMethod = ""
	// MethodHS256 verifies with the project's shared JWT secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 verifies with an Ed25519 public key.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrExpired is returned for a well-formed token whose exp has passed.
	ErrExpired = errors.New("jwt: session token expired")
	// ErrInvalid is returned for malformed, unsigned or wrongly signed tokens.
	ErrInvalid = errors.New("jwt: session token invalid")
	// ErrNoSigningKey is returned by Issue when no private key is configured.
	ErrNoSigningKey = errors.New("jwt: no signing key configured")
)

// Config controls token inspection.
type Config struct {
	SigningMethod SigningMethod
	// Secret is the HS256 key.
	Secret []byte
	// PublicKey and PrivateKey are Ed25519 keys, raw or PEM encoded.
	PublicKey  []byte
	PrivateKey []byte

	Issuer   string
	Audience string
	Leeway   time.Duration
	// Now overrides the clock used for exp/nbf checks.
	Now func() time.Time
}

// SessionClaims are the claims the backend places in its access tokens.
type SessionClaims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// Inspector validates session tokens.
type Inspector struct {
	config Config
	method jwt.SigningMethod
	verify any
	sign   any
}

// NewInspector validates cfg and returns an Inspector.
func NewInspector(cfg Config) (*Inspector, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	i := &Inspector{config: cfg}
	switch SigningMethod(strings.ToLower(string(cfg.SigningMethod))) {
	case MethodNone:
	case MethodHS256:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hs256 requires a secret")
		}
		i.method = jwt.SigningMethodHS256
		i.verify = cfg.Secret
		i.sign = cfg.Secret
	case MethodEd25519:
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires a public key")
		}
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		i.method = jwt.SigningMethodEdDSA
		i.verify = pub
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			i.sign = priv
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}
	return i, nil
}

// Verifies reports whether signatures are checked.
func (i *Inspector) Verifies() bool {
	return i.method != nil
}

// Inspect parses token and checks its time bounds, issuer and audience. Expired tokens
// report ErrExpired; every other rejection reports ErrInvalid.
func (i *Inspector) Inspect(token string) (*SessionClaims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalid
	}

	opts := i.parserOptions()
	claims := &SessionClaims{}

	if i.method == nil {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if err := jwt.NewValidator(opts...).Validate(claims); err != nil {
			return nil, classify(err)
		}
		return claims, nil
	}

	opts = append(opts, jwt.WithValidMethods([]string{i.method.Alg()}))
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != i.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return i.verify, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Issue signs claims with a lifetime of ttl. It backs local stub servers and tests.
func (i *Inspector) Issue(claims SessionClaims, ttl time.Duration) (string, error) {
	if i.sign == nil {
		return "", ErrNoSigningKey
	}
	now := i.config.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.Issuer == "" {
		claims.Issuer = i.config.Issuer
	}
	if len(claims.Audience) == 0 && i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}
	return jwt.NewWithClaims(i.method, claims).SignedString(i.sign)
}

func (i *Inspector) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.config.Now),
	}
	if i.config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.config.Issuer))
	}
	if i.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(i.config.Audience))
	}
	return opts
}

func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %v", ErrExpired, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
