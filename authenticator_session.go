package goShield

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goShield/identity"
	"github.com/MrEthical07/goShield/internal"
	"github.com/MrEthical07/goShield/session"
	"github.com/MrEthical07/goShield/throttle"
	"github.com/google/uuid"
)

// SessionAuthenticator logs users in with an email or username plus
// password, binds them to a server-side session, and optionally issues a
// rotating remember-me token.
//
// States: anonymous, then authenticated after Attempt or a valid session or
// remember token, then anonymous again after Logout.
type SessionAuthenticator struct {
	engine *Engine
	req    *Request
	state  requestState
}

func (s *SessionAuthenticator) Name() string { return AuthenticatorSession }

// Attempt checks throttling for both the identifier and the client origin,
// then verifies the password. Unknown identifiers still pay for a full
// hash verification.
func (s *SessionAuthenticator) Attempt(ctx context.Context, creds Credentials) (*identity.User, error) {
	e := s.engine
	start := time.Now()
	defer func() { e.metrics.Observe(MetricAttemptLatency, time.Since(start)) }()

	identifier := loginIdentifier(creds)
	idKey := throttle.LoginIdentifierKey(identifier)
	ipKey := throttle.LoginOriginKey(s.req.ClientIP)

	if identifier == "" || creds.Password == "" {
		return nil, s.fail(ctx, nil, ReasonMissingCredentials, ipKey)
	}

	decision, err := e.throttler.Check(ctx, idKey, ipKey)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		e.metrics.Inc(MetricLoginThrottled)
		e.emitAudit(ctx, auditRecord{
			eventType:     auditLoginThrottled,
			authenticator: AuthenticatorSession,
			ip:            s.req.ClientIP,
			reason:        ReasonThrottled,
		})
		return nil, &ThrottledError{RetryAfter: decision.RetryAfter}
	}

	user, ident, err := s.lookup(ctx, creds)
	if err != nil {
		return nil, err
	}

	// Always verify, against a dummy hash when ident is nil.
	verified := e.store.Verify(ident, creds.Password)
	switch {
	case ident == nil || user == nil:
		return nil, s.fail(ctx, nil, ReasonUserNotFound, idKey, ipKey)
	case !verified:
		return nil, s.fail(ctx, user, ReasonInvalidCredentials, idKey, ipKey)
	case !user.Active:
		return nil, s.fail(ctx, user, ReasonUserNotActive, idKey, ipKey)
	}

	if err := e.throttler.RecordSuccess(ctx, idKey); err != nil {
		e.logger.Warn("goshield: reset login throttle", "error", err)
	}

	if e.config.Password.UpgradeOnLogin && e.store.NeedsRehash(ident) {
		// A lost swap means the password changed under us; keep the new one.
		if _, err := e.store.UpgradeSecret(ctx, ident, creds.Password); err != nil {
			e.logger.Warn("goshield: password rehash", "user_id", user.ID, "error", err)
		}
	}
	e.touch(ctx, ident)

	if err := s.startSession(ctx, user); err != nil {
		return nil, err
	}
	if creds.Remember && e.config.Remember.Enabled {
		if err := s.issueRemember(ctx, user); err != nil {
			e.logger.Warn("goshield: issue remember token", "user_id", user.ID, "error", err)
		}
	}

	s.state.set(user)
	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType:     auditLoginSuccess,
		authenticator: AuthenticatorSession,
		userID:        user.ID.String(),
		ip:            s.req.ClientIP,
		success:       true,
	})

	return user.Clone(), nil
}

// LoggedIn resolves the presented session, falling back to the remember
// token. The result is cached for the rest of the request.
func (s *SessionAuthenticator) LoggedIn(ctx context.Context) (bool, error) {
	if s.state.user != nil {
		return true, nil
	}
	if s.state.checked {
		return false, nil
	}

	user, err := s.fromSession(ctx)
	if err != nil {
		return false, err
	}
	if user == nil && s.engine.config.Remember.Enabled && s.req.RememberToken != "" {
		user, err = s.fromRemember(ctx)
		if err != nil {
			return false, err
		}
	}

	if user == nil {
		s.state.clear()
		return false, nil
	}
	s.state.set(user)
	return true, nil
}

func (s *SessionAuthenticator) User(ctx context.Context) (*identity.User, error) {
	if _, err := s.LoggedIn(ctx); err != nil {
		return nil, err
	}
	return s.state.current(), nil
}

// Logout destroys the presented session and remember token. Both client
// values are cleared even when nothing was stored server-side.
func (s *SessionAuthenticator) Logout(ctx context.Context) error {
	e := s.engine
	var userID string
	if s.state.user != nil {
		userID = s.state.user.ID.String()
	}

	if s.req.SessionID != "" {
		if err := e.sessions.Delete(ctx, s.req.SessionID); err != nil {
			return err
		}
		e.metrics.Inc(MetricSessionDestroyed)
	}

	if s.req.RememberToken != "" {
		if err := s.revokePresentedRemember(ctx); err != nil {
			return err
		}
	}

	s.req.setSession("")
	s.req.setRemember("")
	s.state.clear()

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, auditRecord{
		eventType:     auditLogout,
		authenticator: AuthenticatorSession,
		userID:        userID,
		ip:            s.req.ClientIP,
		success:       true,
	})
	return nil
}

// Forget destroys every session and remember token of userID.
func (s *SessionAuthenticator) Forget(ctx context.Context, userID uuid.UUID) error {
	e := s.engine
	sessions, err := e.sessions.DeleteAllForUser(ctx, userID.String())
	if err != nil {
		return err
	}
	tokens, err := e.store.RevokeAll(ctx, userID, identity.TypeRememberToken)
	if err != nil {
		return err
	}
	e.metrics.Add(MetricSessionDestroyed, sessions)
	e.metrics.Add(MetricIdentityRevoked, tokens)

	if s.state.user != nil && s.state.user.ID == userID {
		s.req.setSession("")
		s.req.setRemember("")
		s.state.clear()
	}

	e.emitAudit(ctx, auditRecord{
		eventType:     auditForget,
		authenticator: AuthenticatorSession,
		userID:        userID.String(),
		success:       true,
		metadata: map[string]string{
			"sessions":        fmt.Sprint(sessions),
			"remember_tokens": fmt.Sprint(tokens),
		},
	})
	return nil
}

func (s *SessionAuthenticator) fail(ctx context.Context, user *identity.User, reason Reason, keys ...string) error {
	e := s.engine
	if _, err := e.throttler.RecordFailure(ctx, keys...); err != nil {
		return err
	}

	var userID string
	if user != nil {
		userID = user.ID.String()
	}
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, auditRecord{
		eventType:     auditLoginFailure,
		authenticator: AuthenticatorSession,
		userID:        userID,
		ip:            s.req.ClientIP,
		reason:        reason,
	})
	return failure(reason)
}

// lookup resolves the password identity by email, or by username, in a
// single repository read. A miss is (nil, nil, nil).
func (s *SessionAuthenticator) lookup(ctx context.Context, creds Credentials) (*identity.User, *identity.Identity, error) {
	e := s.engine

	var (
		user  *identity.User
		ident *identity.Identity
		err   error
	)
	if identity.NormalizeEmail(creds.Email) != "" {
		ident, user, err = e.store.FindIdentityWithUser(ctx, identity.TypeEmailPassword, creds.Email)
	} else {
		user, ident, err = e.store.FindUserWithIdentity(ctx, creds.Username, identity.TypeEmailPassword)
	}
	if errors.Is(err, identity.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return user, ident, nil
}

// startSession replaces any presented session with a fresh id bound to user.
func (s *SessionAuthenticator) startSession(ctx context.Context, user *identity.User) error {
	e := s.engine
	if s.req.SessionID != "" {
		if err := e.sessions.Delete(ctx, s.req.SessionID); err != nil {
			return err
		}
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return err
	}
	sess := e.sessions.New(sid.String(), user.ID.String(), AuthenticatorSession, originHash(s.req.ClientIP))
	if err := e.sessions.Save(ctx, sess); err != nil {
		return err
	}

	s.req.setSession(sess.ID)
	e.metrics.Inc(MetricSessionCreated)
	return nil
}

func (s *SessionAuthenticator) fromSession(ctx context.Context) (*identity.User, error) {
	e := s.engine
	if s.req.SessionID == "" {
		return nil, nil
	}

	sess, err := e.sessions.Get(ctx, s.req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		s.req.setSession("")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(sess.UserID)
	if err != nil {
		return nil, s.dropSession(ctx)
	}
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, s.dropSession(ctx)
	}
	return user, nil
}

func (s *SessionAuthenticator) dropSession(ctx context.Context) error {
	if err := s.engine.sessions.Delete(ctx, s.req.SessionID); err != nil {
		return err
	}
	s.req.setSession("")
	s.engine.metrics.Inc(MetricSessionDestroyed)
	return nil
}

func (s *SessionAuthenticator) issueRemember(ctx context.Context, user *identity.User) error {
	e := s.engine
	selector, validator, token, err := internal.NewSplitToken()
	if err != nil {
		return err
	}
	extra := tokenExtra{ExpiresAt: e.now().Add(e.config.Remember.TTL)}
	if _, err := e.store.CreateIdentity(ctx, user.ID, identity.TypeRememberToken, selector, validator.String(), extra.marshal()); err != nil {
		return err
	}
	s.req.setRemember(token)
	e.metrics.Inc(MetricIdentityCreated)
	return nil
}

// fromRemember consumes the presented remember token. The validator is
// rotated on every use; a validator mismatch or a lost rotation race means
// the token was replayed, and the whole chain for the user is revoked.
func (s *SessionAuthenticator) fromRemember(ctx context.Context) (*identity.User, error) {
	e := s.engine
	originKey := throttle.TokenOriginKey(s.req.ClientIP)

	decision, err := e.throttler.Check(ctx, originKey)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		e.metrics.Inc(MetricTokenThrottled)
		return nil, &ThrottledError{RetryAfter: decision.RetryAfter}
	}

	selector, validator, err := internal.DecodeSplitToken(s.req.RememberToken)
	if err != nil {
		return nil, s.rememberFailed(ctx, nil, ReasonTokenInvalid, originKey)
	}
	ident, err := e.store.FindIdentity(ctx, identity.TypeRememberToken, selector)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, s.rememberFailed(ctx, nil, ReasonTokenInvalid, originKey)
	}
	if err != nil {
		return nil, err
	}

	if !e.store.Verify(ident, validator.String()) {
		return nil, s.rememberReplayed(ctx, ident.UserID, originKey)
	}

	extra := parseTokenExtra(ident.Extra)
	if extra.expired(e.now()) {
		if err := e.store.DeleteIdentity(ctx, ident); err != nil {
			return nil, err
		}
		e.metrics.Inc(MetricIdentityRevoked)
		return nil, s.rememberFailed(ctx, &ident.UserID, ReasonTokenExpired, "")
	}

	user, err := e.loadUser(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, s.rememberFailed(ctx, &ident.UserID, ReasonUserNotActive, "")
	}

	next, err := internal.NewValidator()
	if err != nil {
		return nil, err
	}
	token, err := internal.EncodeSplitToken(selector, next)
	if err != nil {
		return nil, err
	}
	extra.ExpiresAt = e.now().Add(e.config.Remember.TTL)
	rotated, err := e.store.RotateSecret(ctx, ident, next.String(), extra.marshal())
	if err != nil {
		return nil, err
	}
	if !rotated {
		return nil, s.rememberReplayed(ctx, ident.UserID, originKey)
	}

	if err := s.startSession(ctx, user); err != nil {
		return nil, err
	}
	s.req.setRemember(token)

	e.metrics.Inc(MetricRememberSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType:     auditRememberSuccess,
		authenticator: AuthenticatorSession,
		userID:        user.ID.String(),
		ip:            s.req.ClientIP,
		success:       true,
	})
	return user, nil
}

// rememberFailed clears the cookie and records the failure. It returns a
// non-nil error only for infrastructure failures: an unusable remember token
// just leaves the request anonymous.
func (s *SessionAuthenticator) rememberFailed(ctx context.Context, userID *uuid.UUID, reason Reason, originKey string) error {
	e := s.engine
	if _, err := e.throttler.RecordFailure(ctx, originKey); err != nil {
		return err
	}
	s.req.setRemember("")

	rec := auditRecord{
		eventType:     auditTokenFailure,
		authenticator: AuthenticatorSession,
		ip:            s.req.ClientIP,
		reason:        reason,
	}
	if userID != nil {
		rec.userID = userID.String()
	}
	e.emitAudit(ctx, rec)
	return nil
}

func (s *SessionAuthenticator) rememberReplayed(ctx context.Context, userID uuid.UUID, originKey string) error {
	e := s.engine
	revoked, err := e.store.RevokeAll(ctx, userID, identity.TypeRememberToken)
	if err != nil {
		return err
	}
	sessions, err := e.sessions.DeleteAllForUser(ctx, userID.String())
	if err != nil {
		return err
	}
	e.metrics.Add(MetricIdentityRevoked, revoked)
	e.metrics.Add(MetricSessionDestroyed, sessions)
	e.metrics.Inc(MetricRememberReuse)
	e.logger.Warn("goshield: remember token replay, chain revoked", "user_id", userID, "tokens", revoked, "sessions", sessions)

	if _, err := e.throttler.RecordFailure(ctx, originKey); err != nil {
		return err
	}
	s.req.setRemember("")
	e.emitAudit(ctx, auditRecord{
		eventType:     auditRememberReuse,
		authenticator: AuthenticatorSession,
		userID:        userID.String(),
		ip:            s.req.ClientIP,
		reason:        ReasonRememberReuse,
	})
	return nil
}

// revokePresentedRemember deletes the presented remember identity, but only
// if its validator verifies, so a forged cookie cannot log someone else out.
func (s *SessionAuthenticator) revokePresentedRemember(ctx context.Context) error {
	e := s.engine
	selector, validator, err := internal.DecodeSplitToken(s.req.RememberToken)
	if err != nil {
		return nil
	}
	ident, err := e.store.FindIdentity(ctx, identity.TypeRememberToken, selector)
	if errors.Is(err, identity.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !e.store.Verify(ident, validator.String()) {
		return nil
	}
	if err := e.store.DeleteIdentity(ctx, ident); err != nil {
		return err
	}
	e.metrics.Inc(MetricIdentityRevoked)
	return nil
}

func loginIdentifier(creds Credentials) string {
	if email := identity.NormalizeEmail(creds.Email); email != "" {
		return email
	}
	return strings.ToLower(strings.TrimSpace(creds.Username))
}

func originHash(ip string) [32]byte {
	return sha256.Sum256([]byte(ip))
}
