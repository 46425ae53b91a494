package middleware

import (
	"net/http"

	goShield "github.com/MrEthical07/goShield"
)

// RequireSession requires a live session, or a remember-me token that can
// resume one.
func RequireSession() func(http.Handler) http.Handler {
	return Require(goShield.AuthenticatorSession)
}

// RequireTokens requires a valid bearer access token.
func RequireTokens() func(http.Handler) http.Handler {
	return Require(goShield.AuthenticatorTokens)
}
