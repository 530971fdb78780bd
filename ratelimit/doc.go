// Package ratelimit implements the attempt ledger used to throttle login attempts.
//
// # Window semantics
//
// Each key owns at most one [Entry]. Attempts accumulate inside a window that starts at
// the first attempt; reaching MaxAttempts converts the entry into a fixed-length block.
// Window and block are exclusive phases: once blocked, the window is ignored until the
// block clears, after which the next attempt starts a fresh window. Expired entries are
// deleted lazily by the next read that observes the expiry.
//
// # Storage
//
// The algorithm runs against a [Store]. [MemoryStore] keeps per-process state;
// [RedisStore] shares entries between processes and applies every read-modify-write
// inside a WATCH transaction, so concurrent attempts against one key are never
// under-counted.
//
// # What this package must NOT do
//
//   - Talk to the auth backend or decide what a rejection means for the caller.
//   - Return errors from the [Limiter] facade; throttling is a boolean outcome.
package ratelimit
