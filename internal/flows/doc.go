// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunLogin, RunVerifyMFA, RunRefresh, ...) accepts a typed
// dependency struct and owns exactly one store transaction per call. The
// Engine builds the dependency structs once and keeps its own methods thin.
//
// # Architecture boundaries
//
// Flows coordinate the token codec, the revocation layer, the MFA service,
// password hashing and the store. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Open a second transaction while one is in flight.
package flows
