package goShield

import (
	"context"

	"github.com/MrEthical07/goShield/identity"
	"github.com/google/uuid"
)

// Built-in authenticator names.
const (
	AuthenticatorSession = "session"
	AuthenticatorTokens  = "tokens"
	AuthenticatorJWT     = "jwt"
)

// Authenticator is one credential scheme bound to a single request.
//
// Instances are created per request by a Factory and must not be shared
// across goroutines. Every credential failure is returned as an error
// matching ErrAuthenticationFailed; throttling as ErrThrottled; anything
// else is an infrastructure failure.
type Authenticator interface {
	Name() string
	// Attempt verifies creds and, on success, marks the request as
	// authenticated.
	Attempt(ctx context.Context, creds Credentials) (*identity.User, error)
	// LoggedIn reports whether the request is authenticated under this
	// scheme, establishing state from the presented transport values on
	// first call.
	LoggedIn(ctx context.Context) (bool, error)
	// User returns the authenticated user or nil.
	User(ctx context.Context) (*identity.User, error)
	// Logout clears the request's authenticated state and the server-side
	// state backing it.
	Logout(ctx context.Context) error
	// Forget revokes every credential this scheme holds for userID.
	Forget(ctx context.Context, userID uuid.UUID) error
}

// Factory builds a request-scoped Authenticator.
type Factory func(e *Engine, req *Request) Authenticator

func builtinFactories(cfg Config) map[string]Factory {
	factories := map[string]Factory{
		AuthenticatorSession: newSessionAuthenticator,
		AuthenticatorTokens:  newTokenAuthenticator,
	}
	if cfg.JWT.Enabled {
		factories[AuthenticatorJWT] = newJWTAuthenticator
	}
	return factories
}

func newSessionAuthenticator(e *Engine, req *Request) Authenticator {
	return &SessionAuthenticator{engine: e, req: req}
}

func newTokenAuthenticator(e *Engine, req *Request) Authenticator {
	return &TokenAuthenticator{engine: e, req: req}
}

func newJWTAuthenticator(e *Engine, req *Request) Authenticator {
	return &JWTAuthenticator{engine: e, req: req}
}

// requestState is the per-request marker shared by every built-in scheme.
type requestState struct {
	user    *identity.User
	checked bool
}

func (s *requestState) set(u *identity.User) {
	s.user = u
	s.checked = true
}

func (s *requestState) clear() {
	s.user = nil
	s.checked = true
}

func (s *requestState) current() *identity.User {
	return s.user.Clone()
}
