// Package session provides Redis-backed server-side sessions with compact
// binary encoding.
//
// # Expiry
//
// Each session carries an absolute expiry. The Redis TTL implements the idle
// timeout and is refreshed on every read, never past the absolute expiry.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// It does NOT verify credentials or decide who may log in; that belongs to
// the session authenticator in the root package.
//
// # What this package must NOT do
//
//   - Import goShield or identity (no upward imports).
//   - Store plaintext secrets in [Session] fields.
package session
