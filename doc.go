// Package goShield is a pluggable authentication core: password logins bound
// to Redis sessions with rotating remember-me tokens, bearer access tokens,
// and optional signed JWTs, all resolving to one identity store.
//
// An [Engine] is built once with [Builder.Build] and is safe for concurrent
// use. Each inbound request gets its own [Auth] from [Engine.Auth]; Auth
// resolves authenticators by name (or the configured default) and caches
// them for the request, so logged-in state is consistent within a request
// and never shared across requests.
//
// # Architecture boundaries
//
// goShield is the public surface: [Engine], [Builder], [Config], [Admin] and
// the authenticators. Storage and mechanics live in sub-packages: identity
// (model, Store, Repository contract), pgstore (PostgreSQL Repository),
// throttle (exponential cool-down), session (Redis sessions), password
// (hashing), jwt (token manager). middleware adapts net/http and
// cmd/goshield adapts the admin operations to a terminal.
//
// # Errors
//
// Every credential failure matches [ErrAuthenticationFailed] and carries the
// same message; the internal [Reason] is only visible in audit events and
// logs. Throttled attempts match [ErrThrottled] and report
// RetryAfter. Store or Redis failures are returned as-is so callers can tell
// "not authenticated" from "broken".
//
// # What this package must NOT do
//
//   - Evaluate authorization policy. Groups are tracked, not enforced.
//   - Write credentials outside identity.Store (admin and login share it).
//   - Reveal whether an identifier exists through errors or timing.
package goShield
