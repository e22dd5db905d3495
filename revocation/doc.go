// Package revocation records revoked tokens durably and mirrors them into a
// Redis cache with per-kind TTLs.
//
// The durable log in the store is authoritative. The cache is the fast path
// checked on every request and is rebuilt from the log at process start by
// [Preloader], so cache loss after a restart or flush is repaired without
// reopening revoked tokens for longer than the reconciliation takes.
//
// A revocation is two steps: [Revoker.Record] inside the caller's
// transaction and [Revoker.Publish] once that transaction has committed, so
// a failed commit never leaves a cache entry behind.
//
// Keys have the form <prefix>:<kind>:<sha256(token)>. Raw tokens are never
// stored or logged.
package revocation
