package goShield

import (
	"context"
	"strings"

	"github.com/MrEthical07/goShield/identity"
	"github.com/google/uuid"
)

// Auth is the request-scoped facade. It resolves authenticators by name and
// caches each instance, so repeated queries within one request see the same
// logged-in state. An Auth must not be shared across requests or goroutines.
type Auth struct {
	engine    *Engine
	req       *Request
	instances map[string]Authenticator
}

// Request returns the transport state, including any rotated session or
// remember values the adapter must write back.
func (a *Auth) Request() *Request {
	return a.req
}

// Use returns the handle for the named authenticator. An empty name selects
// the configured default. Unregistered names return
// *UnknownAuthenticatorError.
func (a *Auth) Use(name string) (*Handle, error) {
	if a == nil || a.engine == nil {
		return nil, ErrEngineNotInitialized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = a.engine.config.DefaultAuthenticator
	}

	if inst, ok := a.instances[name]; ok {
		return &Handle{authenticator: inst}, nil
	}
	factory, ok := a.engine.factories[name]
	if !ok {
		return nil, &UnknownAuthenticatorError{Name: name}
	}
	inst := factory(a.engine, a.req)
	a.instances[name] = inst
	return &Handle{authenticator: inst}, nil
}

// Default returns the handle for the default authenticator. Build
// guarantees it is registered.
func (a *Auth) Default() *Handle {
	h, err := a.Use("")
	if err != nil {
		panic(err)
	}
	return h
}

// Handle is the uniform query surface over one Authenticator.
type Handle struct {
	authenticator Authenticator
}

func (h *Handle) Name() string {
	return h.authenticator.Name()
}

// Authenticator exposes the underlying scheme, e.g. to reach
// (*TokenAuthenticator).Can.
func (h *Handle) Authenticator() Authenticator {
	return h.authenticator
}

func (h *Handle) Attempt(ctx context.Context, creds Credentials) (*identity.User, error) {
	return h.authenticator.Attempt(ctx, creds)
}

func (h *Handle) LoggedIn(ctx context.Context) (bool, error) {
	return h.authenticator.LoggedIn(ctx)
}

func (h *Handle) User(ctx context.Context) (*identity.User, error) {
	return h.authenticator.User(ctx)
}

// ID returns the authenticated user's id, or uuid.Nil when anonymous.
func (h *Handle) ID(ctx context.Context) (uuid.UUID, error) {
	u, err := h.authenticator.User(ctx)
	if err != nil || u == nil {
		return uuid.Nil, err
	}
	return u.ID, nil
}

func (h *Handle) Logout(ctx context.Context) error {
	return h.authenticator.Logout(ctx)
}

func (h *Handle) Forget(ctx context.Context, userID uuid.UUID) error {
	return h.authenticator.Forget(ctx, userID)
}
