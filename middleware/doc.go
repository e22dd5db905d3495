// Package middleware exposes net/http adapters over authcore.Engine.
//
// # Guards
//
//   - [Guard]: access tokens only, no Redis call.
//   - [RefreshGuard]: access or refresh tokens; revoked refresh tokens are
//     rejected. Mount it on the refresh route.
//   - [RequirePermission]: asks the Engine's Authorizer about the caller.
//
// Guards read the Authorization header and inject the verified claims into
// the request context, where [authcore.ClaimsFromContext] finds them.
//
// This package translates HTTP semantics into Engine calls. It does not
// parse tokens or make authorization decisions itself.
package middleware
