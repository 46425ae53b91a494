// Package middleware adapts goShield to net/http.
//
// # Middleware
//
//   - [Authenticate] builds the request-scoped goShield.Auth from cookies,
//     the Authorization header and RemoteAddr, and writes rotated or cleared
//     cookies back.
//   - [Require] rejects requests the named authenticator does not accept.
//   - [RequireSession], [RequireTokens], [RequireJWT] are Require shorthands.
//
// Handlers reach the Auth with goShield.AuthFromContext and perform login or
// logout through it; cookie changes they cause are written automatically.
//
// # What this package must NOT do
//
//   - Verify credentials itself. Every decision comes from the engine.
//   - Reveal why authentication failed.
package middleware
