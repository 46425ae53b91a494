package goShield

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goShield/identity"
	"github.com/MrEthical07/goShield/internal"
	"github.com/MrEthical07/goShield/throttle"
	"github.com/google/uuid"
)

// TokenAuthenticator authenticates each request independently from a
// bearer access token. Nothing persists between requests.
//
// Failed lookups are throttled per client origin. An origin in cool-down is
// rejected before any lookup, so a scanner cannot tell valid tokens apart
// while blocked.
type TokenAuthenticator struct {
	engine *Engine
	req    *Request
	state  requestState
	token  *AccessToken
}

func (t *TokenAuthenticator) Name() string { return AuthenticatorTokens }

// Attempt authenticates creds.Token.
func (t *TokenAuthenticator) Attempt(ctx context.Context, creds Credentials) (*identity.User, error) {
	user, err := t.authenticate(ctx, creds.Token)
	if err != nil {
		return nil, err
	}
	return user.Clone(), nil
}

// LoggedIn authenticates the request's bearer token once. Credential
// failures yield (false, nil).
func (t *TokenAuthenticator) LoggedIn(ctx context.Context) (bool, error) {
	if t.state.user != nil {
		return true, nil
	}
	if t.state.checked || t.req.BearerToken == "" {
		t.state.checked = true
		return false, nil
	}

	_, err := t.authenticate(ctx, t.req.BearerToken)
	if errors.Is(err, ErrAuthenticationFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *TokenAuthenticator) User(ctx context.Context) (*identity.User, error) {
	if _, err := t.LoggedIn(ctx); err != nil {
		return nil, err
	}
	return t.state.current(), nil
}

// Logout forgets the token for the rest of the request. The token itself
// stays valid; use Admin.RevokeAccessToken to revoke it.
func (t *TokenAuthenticator) Logout(ctx context.Context) error {
	var userID string
	if t.state.user != nil {
		userID = t.state.user.ID.String()
	}
	t.state.clear()
	t.token = nil

	t.engine.metrics.Inc(MetricLogout)
	t.engine.emitAudit(ctx, auditRecord{
		eventType:     auditLogout,
		authenticator: AuthenticatorTokens,
		userID:        userID,
		ip:            t.req.ClientIP,
		success:       true,
	})
	return nil
}

// Forget revokes every access token of userID.
func (t *TokenAuthenticator) Forget(ctx context.Context, userID uuid.UUID) error {
	n, err := t.engine.store.RevokeAll(ctx, userID, identity.TypeAccessToken)
	if err != nil {
		return err
	}
	t.engine.metrics.Add(MetricIdentityRevoked, n)
	if t.state.user != nil && t.state.user.ID == userID {
		t.state.clear()
		t.token = nil
	}
	return nil
}

// Token returns the authenticated token, or nil.
func (t *TokenAuthenticator) Token() *AccessToken {
	return t.token
}

// Can reports whether the authenticated token grants scope.
func (t *TokenAuthenticator) Can(scope string) bool {
	return t.token.Can(scope)
}

func (t *TokenAuthenticator) authenticate(ctx context.Context, raw string) (*identity.User, error) {
	e := t.engine
	originKey := throttle.TokenOriginKey(t.req.ClientIP)

	decision, err := e.throttler.Check(ctx, originKey)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		e.metrics.Inc(MetricTokenThrottled)
		t.state.clear()
		return nil, &ThrottledError{RetryAfter: decision.RetryAfter}
	}

	if raw == "" {
		return nil, t.fail(ctx, nil, ReasonMissingCredentials, originKey)
	}
	selector, validator, err := internal.DecodeSplitToken(raw)
	if err != nil {
		return nil, t.fail(ctx, nil, ReasonTokenInvalid, originKey)
	}

	ident, err := e.store.FindIdentity(ctx, identity.TypeAccessToken, selector)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, t.fail(ctx, nil, ReasonTokenInvalid, originKey)
	}
	if err != nil {
		return nil, err
	}
	if !e.store.Verify(ident, validator.String()) {
		return nil, t.fail(ctx, &ident.UserID, ReasonTokenInvalid, originKey)
	}

	token := accessTokenFrom(ident)
	if token.Expired(e.now()) {
		if err := e.store.DeleteIdentity(ctx, ident); err != nil {
			return nil, err
		}
		e.metrics.Inc(MetricIdentityRevoked)
		return nil, t.fail(ctx, &ident.UserID, ReasonTokenExpired, originKey)
	}

	user, err := e.loadUser(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, t.fail(ctx, &ident.UserID, ReasonUserNotFound, originKey)
	}
	if !user.Active {
		return nil, t.fail(ctx, &ident.UserID, ReasonUserNotActive, originKey)
	}

	e.touch(ctx, ident)
	token.LastUsedAt = ident.LastUsedAt

	t.state.set(user)
	t.token = token
	e.metrics.Inc(MetricTokenSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType:     auditTokenSuccess,
		authenticator: AuthenticatorTokens,
		userID:        user.ID.String(),
		ip:            t.req.ClientIP,
		success:       true,
	})
	return user, nil
}

func (t *TokenAuthenticator) fail(ctx context.Context, userID *uuid.UUID, reason Reason, originKey string) error {
	e := t.engine
	t.state.clear()
	t.token = nil

	if _, err := e.throttler.RecordFailure(ctx, originKey); err != nil {
		return err
	}

	rec := auditRecord{
		eventType:     auditTokenFailure,
		authenticator: AuthenticatorTokens,
		ip:            t.req.ClientIP,
		reason:        reason,
	}
	if userID != nil {
		rec.userID = userID.String()
	}
	e.metrics.Inc(MetricTokenFailure)
	e.emitAudit(ctx, rec)
	return failure(reason)
}

func accessTokenFrom(ident *identity.Identity) *AccessToken {
	extra := parseTokenExtra(ident.Extra)
	return &AccessToken{
		Selector:   ident.Secret,
		Name:       extra.Name,
		Scopes:     extra.Scopes,
		ExpiresAt:  extra.ExpiresAt,
		LastUsedAt: ident.LastUsedAt,
		CreatedAt:  ident.CreatedAt,
	}
}

// accessTokenExpiry resolves a requested ttl against the configured default.
// Zero means the default; negative means no expiry.
func accessTokenExpiry(now time.Time, ttl, def time.Duration) time.Time {
	if ttl == 0 {
		ttl = def
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
