package loanGuard

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/loanGuard/autherr"
)

var (
	// ErrInvalidCredentials is the opaque sign-in rejection. It never says whether the
	// email exists.
	ErrInvalidCredentials = autherr.ErrInvalidCredentials
	// ErrLoginRateLimited matches every rejection caused by a blocked login key.
	ErrLoginRateLimited = autherr.ErrRateLimited
	// ErrLookupFailed matches identity lookups that could not complete.
	ErrLookupFailed = autherr.ErrLookupFailed

	ErrEngineNotReady = errors.New("engine not initialized")
	ErrNoBackend      = errors.New("no auth backend configured")
	ErrBuilderUsed    = errors.New("builder already used")
)

// LoginBlockedError is returned by Engine.Login while the email's key is blocked.
// It matches ErrLoginRateLimited.
type LoginBlockedError struct {
	Minutes int
}

func (e *LoginBlockedError) Error() string {
	return fmt.Sprintf("too many login attempts, try again in %d minutes", e.Minutes)
}

func (e *LoginBlockedError) Unwrap() error {
	return ErrLoginRateLimited
}
