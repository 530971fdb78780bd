// Package middleware adapts the engine's gates and login throttling to net/http.
//
// # Sessions
//
// An Engine holds a single backend session, so a server never shares one between
// clients. [Sessions] builds an engine per signed-in client from an [EngineFactory]
// and binds it to an opaque, HttpOnly cookie. Every engine from the factory shares
// one attempt ledger, so throttling counts across sessions. Requests without a known
// cookie are denied before any engine is consulted.
//
// # Guards
//
//   - [RequireAuth] runs the auth gate against the request's session.
//   - [RequireAdmin] runs the auth gate and then the admin gate.
//   - [LoginRateLimit] rejects login submissions for blocked keys before the handler runs.
//   - [LoginHandler] signs in on a fresh session and sets the cookie.
//   - [LogoutHandler] ends the session and clears the cookie.
//
// Denials answer 303 See Other to the decision's redirect target and carry the user
// notice in the X-Auth-Notice header. Allowed requests carry the decision in their
// context; read it back with [DecisionFromContext].
//
// # What this package must NOT do
//
//   - Decide anything itself; every verdict comes from the engine.
//   - Talk to the auth backend or the ledger store directly.
package middleware
