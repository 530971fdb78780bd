package role

import "strings"

// Role is an organization membership level.
type Role string

const (
	Owner     Role = "owner"
	Admin     Role = "admin"
	Collector Role = "collector"
	Viewer    Role = "viewer"
)

// LeastPrivileged is the role served when nothing better can be proven.
const LeastPrivileged = Viewer

// Parse maps a stored role name onto a known Role.
func Parse(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case Owner, Admin, Collector, Viewer:
		return r, true
	}
	return "", false
}

// Set is a collection of roles.
type Set map[Role]struct{}

// NewSet builds a Set from roles.
func NewSet(roles ...Role) Set {
	s := make(Set, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// DefaultPrivileged returns the roles allowed into admin-only views.
func DefaultPrivileged() Set {
	return NewSet(Owner, Admin)
}

// Contains reports whether r is in s.
func (s Set) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}
