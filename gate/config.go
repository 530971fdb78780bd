package gate

import (
	"time"

	"github.com/MrEthical07/loanGuard/role"
)

// Config holds the redirect targets and limits shared by both guards.
type Config struct {
	// LoginPath receives unauthenticated and expired callers. Defaults to "/login".
	LoginPath string
	// DefaultPath receives under-privileged callers of admin views. Defaults to "/".
	DefaultPath string
	// Timeout bounds one evaluation. Defaults to 10s.
	Timeout time.Duration
	// Privileged is the admin role set. Defaults to owner and admin.
	Privileged role.Set
}

// DefaultTimeout bounds an evaluation when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

func (c Config) withDefaults() Config {
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.DefaultPath == "" {
		c.DefaultPath = "/"
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if len(c.Privileged) == 0 {
		c.Privileged = role.DefaultPrivileged()
	}
	return c
}

// Observer is called once per evaluation with the decision and its latency.
type Observer func(kind Kind, d Decision, elapsed time.Duration)

// Kind names the guard that produced a decision.
type Kind string

const (
	KindAuth  Kind = "auth"
	KindAdmin Kind = "admin"
)
