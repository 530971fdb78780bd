// Package gate implements the route guards evaluated before a protected view is
// entered.
//
// # Guards
//
//   - [Gate] resolves the current identity through the session cache, then checks the
//     underlying session token. An expired session forces a sign-out.
//   - [AdminGate] allows only roles in the privileged set. It redirects to the default
//     view rather than to login, since the caller is signed in but under-privileged.
//
// Every evaluation walks Unchecked, Checking and ends in exactly one of Allowed or
// Denied. Errors, panics and timeouts all resolve to Denied.
//
// # What this package must NOT do
//
//   - Return an error or panic to the caller; failures are carried in [Decision].
//   - Cache decisions across evaluations.
//   - Consult the login rate limiter.
package gate
