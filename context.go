package goShield

import "context"

type authContextKey struct{}

// WithAuth attaches the request-scoped Auth to ctx. Transport adapters call
// it once per request; handlers retrieve it with AuthFromContext.
func WithAuth(ctx context.Context, a *Auth) context.Context {
	return context.WithValue(ctx, authContextKey{}, a)
}

// AuthFromContext returns the Auth attached by WithAuth.
func AuthFromContext(ctx context.Context) (*Auth, bool) {
	if ctx == nil {
		return nil, false
	}
	a, ok := ctx.Value(authContextKey{}).(*Auth)
	return a, ok && a != nil
}
