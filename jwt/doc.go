// Package jwt issues and verifies short-lived access JWTs for the jwt
// authenticator, with strict algorithm, issuer, audience and kid checks.
package jwt
