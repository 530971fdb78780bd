package gate

import (
	"github.com/MrEthical07/loanGuard/role"
	"github.com/MrEthical07/loanGuard/session"
)

// State is the position of one evaluation in the guard state machine.
type State uint8

const (
	Unchecked State = iota
	Checking
	Allowed
	Denied
)

func (s State) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case Checking:
		return "checking"
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Reason explains a denial.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonUnauthenticated
	ReasonSessionExpired
	ReasonLookupFailed
	ReasonTimeout
	ReasonForbidden
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnauthenticated:
		return "unauthenticated"
	case ReasonSessionExpired:
		return "session_expired"
	case ReasonLookupFailed:
		return "lookup_failed"
	case ReasonTimeout:
		return "timeout"
	case ReasonForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Notice is the user-facing message key attached to a denial.
type Notice string

const (
	NoticeNone           Notice = ""
	NoticeLoginRequired  Notice = "login_required"
	NoticeSessionExpired Notice = "session_expired"
	NoticeAuthError      Notice = "auth_error"
	NoticeForbidden      Notice = "forbidden"
)

// Decision is the terminal result of one evaluation.
type Decision struct {
	// ID correlates log lines and audit events of one evaluation.
	ID       string
	State    State
	Reason   Reason
	Notice   Notice
	Redirect string
	Identity *session.Identity
	Role     role.Role
	// Err holds the logged cause of a LookupFailed or Timeout denial.
	Err error
}

// Allowed reports whether the evaluation let the caller through.
func (d Decision) Allowed() bool {
	return d.State == Allowed
}

// Effects receives the side effects of an evaluation. Nil fields are skipped.
type Effects struct {
	// OnState observes Checking and then the terminal state.
	OnState  func(State)
	Notify   func(Notice)
	Redirect func(path string)
}

func (fx Effects) state(s State) {
	if fx.OnState != nil {
		fx.OnState(s)
	}
}

func (fx Effects) apply(d Decision) {
	fx.state(d.State)
	if d.State != Denied {
		return
	}
	if d.Notice != NoticeNone && fx.Notify != nil {
		fx.Notify(d.Notice)
	}
	if d.Redirect != "" && fx.Redirect != nil {
		fx.Redirect(d.Redirect)
	}
}
