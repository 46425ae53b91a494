package goShield

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goShield/identity"
	"github.com/MrEthical07/goShield/internal"
	"github.com/google/uuid"
)

// Admin exposes user management. Every credential write goes through the
// same identity store and hashers as the login path.
type Admin struct {
	engine *Engine
}

// CreateUser creates an inactive user with an email_password identity.
// Collisions return identity.ErrDuplicateUsername or
// identity.ErrDuplicateIdentity, and no user is left behind.
func (a *Admin) CreateUser(ctx context.Context, username, email, plaintext string) (*identity.User, error) {
	u, err := a.engine.createAccount(ctx, username, email, plaintext, false)
	if err != nil {
		return nil, err
	}
	a.record(ctx, "create_user", u.ID)
	return u, nil
}

// FindUser looks a user up by username, or by email when username is empty.
func (a *Admin) FindUser(ctx context.Context, username, email string) (*identity.User, error) {
	if strings.TrimSpace(username) != "" {
		return a.engine.store.FindUserByUsername(ctx, username)
	}
	if identity.NormalizeEmail(email) != "" {
		return a.engine.store.FindUserByEmail(ctx, email)
	}
	return nil, errors.New("username or email is required")
}

func (a *Admin) GetUser(ctx context.Context, userID uuid.UUID) (*identity.User, error) {
	return a.engine.store.GetUser(ctx, userID)
}

// ListUsers returns every user, or those whose email contains emailFilter.
func (a *Admin) ListUsers(ctx context.Context, emailFilter string) ([]identity.User, error) {
	return a.engine.store.ListUsers(ctx, emailFilter)
}

func (a *Admin) Activate(ctx context.Context, userID uuid.UUID) error {
	return a.setActive(ctx, userID, true)
}

// Deactivate blocks the user. Existing sessions and tokens stop
// authenticating on their next use.
func (a *Admin) Deactivate(ctx context.Context, userID uuid.UUID) error {
	return a.setActive(ctx, userID, false)
}

func (a *Admin) setActive(ctx context.Context, userID uuid.UUID, active bool) error {
	u, err := a.engine.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	u.Active = active
	if err := a.engine.store.SaveUser(ctx, u); err != nil {
		return err
	}
	op := "deactivate"
	if active {
		op = "activate"
	}
	a.record(ctx, op, userID)
	return nil
}

func (a *Admin) ChangeUsername(ctx context.Context, userID uuid.UUID, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username is required")
	}
	u, err := a.engine.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	u.Username = username
	if err := a.engine.store.SaveUser(ctx, u); err != nil {
		return err
	}
	a.record(ctx, "change_username", userID)
	return nil
}

// ChangeEmail re-keys the user's email_password identity. The password hash
// is unchanged.
func (a *Admin) ChangeEmail(ctx context.Context, userID uuid.UUID, email string) error {
	ident, err := a.passwordIdentity(ctx, userID)
	if err != nil {
		return err
	}
	if err := a.engine.store.ChangeIdentifier(ctx, ident, email); err != nil {
		return err
	}
	a.record(ctx, "change_email", userID)
	return nil
}

// SetPassword re-hashes the user's password and forgets every session,
// remember token, access token and JWT the user holds.
func (a *Admin) SetPassword(ctx context.Context, userID uuid.UUID, plaintext string) error {
	if err := a.engine.checkPasswordPolicy(plaintext); err != nil {
		return err
	}
	ident, err := a.passwordIdentity(ctx, userID)
	if err != nil {
		return err
	}
	if err := a.engine.store.ChangeSecret(ctx, ident, plaintext); err != nil {
		return err
	}
	if err := a.engine.ForgetUser(ctx, userID); err != nil {
		return fmt.Errorf("password changed but credentials not revoked: %w", err)
	}
	a.record(ctx, "set_password", userID)
	return nil
}

func (a *Admin) AddGroup(ctx context.Context, userID uuid.UUID, group string) error {
	if err := a.engine.store.AddGroup(ctx, userID, group); err != nil {
		return err
	}
	a.record(ctx, "add_group", userID)
	return nil
}

func (a *Admin) RemoveGroup(ctx context.Context, userID uuid.UUID, group string) error {
	if err := a.engine.store.RemoveGroup(ctx, userID, group); err != nil {
		return err
	}
	a.record(ctx, "remove_group", userID)
	return nil
}

// DeleteUser forgets every credential of the user, then removes the user
// with its identities and group memberships.
func (a *Admin) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := a.engine.store.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := a.engine.ForgetUser(ctx, userID); err != nil {
		return err
	}
	if err := a.engine.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	a.engine.metrics.Inc(MetricUserDeleted)
	a.record(ctx, "delete_user", userID)
	return nil
}

// GenerateAccessToken issues a bearer token. The raw token is returned only
// here. A zero ttl uses AccessToken.DefaultTTL; a negative ttl never expires.
func (a *Admin) GenerateAccessToken(ctx context.Context, userID uuid.UUID, name string, scopes []string, ttl time.Duration) (string, *AccessToken, error) {
	e := a.engine
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return "", nil, err
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeAll}
	}

	selector, validator, raw, err := internal.NewSplitToken()
	if err != nil {
		return "", nil, err
	}
	extra := tokenExtra{
		Name:      strings.TrimSpace(name),
		Scopes:    scopes,
		ExpiresAt: accessTokenExpiry(e.now(), ttl, e.config.AccessToken.DefaultTTL),
	}
	ident, err := e.store.CreateIdentity(ctx, userID, identity.TypeAccessToken, selector, validator.String(), extra.marshal())
	if err != nil {
		return "", nil, err
	}
	e.metrics.Inc(MetricIdentityCreated)
	a.record(ctx, "generate_access_token", userID)
	return raw, accessTokenFrom(ident), nil
}

// RevokeAccessToken deletes the user's token with selector. Tokens of other
// users report identity.ErrNotFound.
func (a *Admin) RevokeAccessToken(ctx context.Context, userID uuid.UUID, selector string) error {
	if err := a.engine.store.RevokeIdentity(ctx, userID, identity.TypeAccessToken, selector); err != nil {
		return err
	}
	a.engine.metrics.Inc(MetricIdentityRevoked)
	a.record(ctx, "revoke_access_token", userID)
	return nil
}

func (a *Admin) ListAccessTokens(ctx context.Context, userID uuid.UUID) ([]AccessToken, error) {
	idents, err := a.engine.store.ListIdentities(ctx, userID, identity.TypeAccessToken)
	if err != nil {
		return nil, err
	}
	out := make([]AccessToken, 0, len(idents))
	for i := range idents {
		out = append(out, *accessTokenFrom(&idents[i]))
	}
	return out, nil
}

// IssueJWT signs an access JWT for an active user. It requires the jwt
// authenticator to be enabled.
func (a *Admin) IssueJWT(ctx context.Context, userID uuid.UUID) (string, error) {
	e := a.engine
	if e.jwt == nil {
		return "", &UnknownAuthenticatorError{Name: AuthenticatorJWT}
	}
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if !u.Active {
		return "", ErrUserNotActive
	}
	return e.jwt.CreateAccess(u.ID.String())
}

func (a *Admin) passwordIdentity(ctx context.Context, userID uuid.UUID) (*identity.Identity, error) {
	idents, err := a.engine.store.ListIdentities(ctx, userID, identity.TypeEmailPassword)
	if err != nil {
		return nil, err
	}
	if len(idents) == 0 {
		return nil, identity.ErrNotFound
	}
	return &idents[0], nil
}

func (a *Admin) record(ctx context.Context, op string, userID uuid.UUID) {
	a.engine.emitAudit(ctx, auditRecord{
		eventType: auditAdmin,
		userID:    userID.String(),
		success:   true,
		metadata:  map[string]string{"op": op},
	})
}
