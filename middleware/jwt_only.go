package middleware

import (
	"net/http"

	goShield "github.com/MrEthical07/goShield"
)

// RequireJWT requires a valid access JWT in the Authorization header. The
// engine must be built with JWT enabled.
func RequireJWT() func(http.Handler) http.Handler {
	return Require(goShield.AuthenticatorJWT)
}
