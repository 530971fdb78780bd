// Package role resolves and memoizes the authorization role of the signed-in identity.
//
// Unlike the session cache, role lookups fail closed: any error resolves to the
// least-privileged role and is logged, never returned.
//
// # What this package must NOT do
//
//   - Import loanGuard or gate (no upward imports).
//   - Cache a fallback role produced by a failed lookup.
//   - Serve a role fetched for one identity to another identity.
package role
