// Package jwt inspects the access tokens issued by the hosted auth backend and decides
// locally whether a session is still valid, without a network round trip.
//
// Tokens are verified with HS256 or Ed25519 when a key is configured. Without a key the
// inspector only decodes the claims and checks the time bounds, which is enough to
// detect an expired session but must not be used as an authentication proof.
package jwt
