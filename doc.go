// Package loanGuard throttles dashboard logins and guards protected views for a
// multi-tenant lending dashboard backed by a hosted auth service.
//
// An [Engine] built by [Builder] owns four cooperating parts: the attempt ledger
// behind the rate limiter facade, a short-lived identity cache, a role cache that
// fails closed to least privilege, and the auth and admin gates that decide whether
// a navigation may proceed. Engine methods are safe to call from multiple goroutines.
//
// # Architecture boundaries
//
// loanGuard is the public surface: [Engine], [Builder], [Config] and the audit and
// metrics value types. The ledger lives in ratelimit, the caches in session and role,
// the state machines in gate and the REST client in backend. Login and logout
// orchestration lives under internal/flows.
//
// # What this package must NOT do
//
//   - Return lookup errors from gate or role checks; they resolve to a denial or to
//     the least-privileged role.
//   - Count a backend outage as a failed login attempt.
//   - Keep package-level mutable state; everything hangs off an Engine.
package loanGuard
