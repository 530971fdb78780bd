// Package internal groups helpers that are private to loanGuard.
//
// # Sub-packages
//
//   - authtest: in-process auth backend for tests, examples and the load generator
//   - flows: login and logout orchestration over injected dependencies
//   - logging: zap logger construction and identifier masking
//   - ttlcache: single-value cache slot with freshness tracking
//
// # What this package must NOT do
//
//   - Export types that appear in the public loanGuard API.
package internal
