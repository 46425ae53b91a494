// Package internal contains helper utilities that are private to goShield:
// session identifiers and the selector/validator split-token encoding used
// by remember-me and access tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - admincli: the user-management command adapter behind cmd/goshield
//
// # What this package must NOT do
//
//   - Export types that appear in the public goShield API.
//   - Hash or persist secrets.
package internal
