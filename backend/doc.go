// Package backend is a REST client for the hosted auth and database service that
// holds the dashboard's users, sessions and organization memberships.
//
// The client keeps the current session in memory, validates it locally through a
// jwt.Inspector, refreshes it when the access token expires, and fans auth state
// changes out to subscribers in-process.
//
// Credential failures are opaque: every rejected sign-in maps to
// autherr.KindInvalidCredentials whether or not the identifier exists.
package backend
