// Package autherr defines the tagged error kinds shared by the limiter, caches, gates
// and backend client.
//
// Callers classify failures with errors.Is against the sentinel values or with KindOf:
//
//	if errors.Is(err, autherr.ErrLookupFailed) { ... }
//
// # What this package must NOT do
//
//   - Import any other loanGuard package (it is the leaf of the dependency graph).
package autherr

import (
	"errors"
	"strings"
)

// Kind classifies an authentication failure.
type Kind uint8

const (
	// KindUnknown is the zero kind; errors that carry no kind report it.
	KindUnknown Kind = iota
	// KindLookupFailed means an identity, session or role lookup could not complete.
	KindLookupFailed
	// KindUnauthenticated means no identity is signed in.
	KindUnauthenticated
	// KindUnauthorized means the identity lacks the required role.
	KindUnauthorized
	// KindSessionExpired means an identity exists but its session token is no longer valid.
	KindSessionExpired
	// KindInvalidCredentials is the opaque sign-in failure; it never says whether the identifier exists.
	KindInvalidCredentials
	// KindRateLimited means the attempt ledger rejected the operation.
	KindRateLimited
	// KindTimeout means a guarded evaluation exceeded its deadline.
	KindTimeout
	// KindUnavailable means the remote backend could not be reached.
	KindUnavailable
)

var kindNames = [...]string{
	KindUnknown:            "unknown",
	KindLookupFailed:       "lookup failed",
	KindUnauthenticated:    "unauthenticated",
	KindUnauthorized:       "unauthorized",
	KindSessionExpired:     "session expired",
	KindInvalidCredentials: "invalid credentials",
	KindRateLimited:        "rate limited",
	KindTimeout:            "timeout",
	KindUnavailable:        "backend unavailable",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error is a failure tagged with a Kind. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against a bare sentinel of the same kind, so
// errors.Is(err, ErrLookupFailed) holds for any LookupFailed error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// New builds an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first tagged error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var (
	ErrLookupFailed       = &Error{Kind: KindLookupFailed}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrSessionExpired     = &Error{Kind: KindSessionExpired}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrUnavailable        = &Error{Kind: KindUnavailable}
)
