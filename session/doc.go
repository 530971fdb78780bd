// Package session memoizes the current authenticated identity for a short TTL so guard
// evaluations do not hit the remote auth backend on every navigation.
//
// # Architecture boundaries
//
// This package owns the [Cache] slot and the [Identity] model. It does NOT validate
// session tokens, resolve roles, or decide access; those belong to the gate and role
// packages and to the Engine.
//
// # What this package must NOT do
//
//   - Import loanGuard, gate, or role (no upward imports).
//   - Swallow lookup failures: a failed fetch is returned to the caller as
//     autherr.KindLookupFailed and the slot is left unchanged.
package session
