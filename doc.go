// Package authcore is an authentication core: signed access, refresh and
// reset-password tokens, a one-time-code second factor delivered by email,
// a password reset flow, and token revocation backed by a durable store with
// a Redis cache in front.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy and value types. Flow orchestration lives under
// internal/flows and receives its collaborators as plain functions, so the
// flows never import this package.
//
// # Consistency
//
// Every operation that mutates a principal or its challenge runs in one
// store transaction. Revocation writes the durable record first and the
// cache second; the cache is rebuilt from the durable records by the
// startup job seeded with [Engine.RunStartupJobs].
//
// # Hot path
//
// [Engine.VerifyAccessToken] never touches the store or Redis.
// [Engine.VerifyBearerToken] performs one Redis read for refresh tokens.
package authcore
