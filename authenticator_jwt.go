package goShield

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goShield/identity"
	"github.com/MrEthical07/goShield/throttle"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JWTAuthenticator authenticates requests from a signed access JWT. Tokens
// are self-contained; Forget revokes them by writing a per-user watermark
// that rejects every token issued before it.
type JWTAuthenticator struct {
	engine *Engine
	req    *Request
	state  requestState
	claims *AccessClaims
}

// AccessClaims are the verified claims of the presented JWT.
type AccessClaims struct {
	UserID    uuid.UUID
	TokenID   string
	IssuedAt  int64
	ExpiresAt int64
}

func (j *JWTAuthenticator) Name() string { return AuthenticatorJWT }

// Attempt authenticates creds.Token.
func (j *JWTAuthenticator) Attempt(ctx context.Context, creds Credentials) (*identity.User, error) {
	user, err := j.authenticate(ctx, creds.Token)
	if err != nil {
		return nil, err
	}
	return user.Clone(), nil
}

func (j *JWTAuthenticator) LoggedIn(ctx context.Context) (bool, error) {
	if j.state.user != nil {
		return true, nil
	}
	if j.state.checked || j.req.BearerToken == "" {
		j.state.checked = true
		return false, nil
	}

	_, err := j.authenticate(ctx, j.req.BearerToken)
	if errors.Is(err, ErrAuthenticationFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (j *JWTAuthenticator) User(ctx context.Context) (*identity.User, error) {
	if _, err := j.LoggedIn(ctx); err != nil {
		return nil, err
	}
	return j.state.current(), nil
}

// Logout forgets the token for the rest of the request.
func (j *JWTAuthenticator) Logout(ctx context.Context) error {
	var userID string
	if j.state.user != nil {
		userID = j.state.user.ID.String()
	}
	j.state.clear()
	j.claims = nil

	j.engine.metrics.Inc(MetricLogout)
	j.engine.emitAudit(ctx, auditRecord{
		eventType:     auditLogout,
		authenticator: AuthenticatorJWT,
		userID:        userID,
		ip:            j.req.ClientIP,
		success:       true,
	})
	return nil
}

// Forget rejects every JWT already issued to userID. The watermark outlives
// the longest-lived token it can match. It is wall time in microseconds,
// like the iat_us claim it is compared against.
func (j *JWTAuthenticator) Forget(ctx context.Context, userID uuid.UUID) error {
	e := j.engine
	cfg := e.config.JWT
	ttl := cfg.AccessTTL + cfg.Leeway + time.Second
	if err := e.redis.Set(ctx, cfg.RevocationPrefix+userID.String(), time.Now().UnixMicro(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if j.state.user != nil && j.state.user.ID == userID {
		j.state.clear()
		j.claims = nil
	}
	return nil
}

// Claims returns the verified claims, or nil.
func (j *JWTAuthenticator) Claims() *AccessClaims {
	return j.claims
}

func (j *JWTAuthenticator) authenticate(ctx context.Context, raw string) (*identity.User, error) {
	e := j.engine
	originKey := throttle.TokenOriginKey(j.req.ClientIP)

	decision, err := e.throttler.Check(ctx, originKey)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		e.metrics.Inc(MetricTokenThrottled)
		j.state.clear()
		return nil, &ThrottledError{RetryAfter: decision.RetryAfter}
	}

	if raw == "" {
		return nil, j.fail(ctx, nil, ReasonMissingCredentials, originKey)
	}
	parsed, err := e.jwt.ParseAccess(raw)
	if errors.Is(err, jwtlib.ErrTokenExpired) {
		return nil, j.fail(ctx, nil, ReasonTokenExpired, originKey)
	}
	if err != nil {
		return nil, j.fail(ctx, nil, ReasonTokenInvalid, originKey)
	}
	userID, err := uuid.Parse(parsed.UID)
	if err != nil {
		return nil, j.fail(ctx, nil, ReasonTokenInvalid, originKey)
	}

	var issuedAt int64
	if parsed.IssuedAt != nil {
		issuedAt = parsed.IssuedAt.Unix()
	}
	watermark, err := e.redis.Get(ctx, e.config.JWT.RevocationPrefix+userID.String()).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		revokedAt, convErr := strconv.ParseInt(watermark, 10, 64)
		if convErr != nil || parsed.IssuedAtMicros() < revokedAt {
			return nil, j.fail(ctx, &userID, ReasonTokenRevoked, originKey)
		}
	}

	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, j.fail(ctx, &userID, ReasonUserNotFound, originKey)
	}
	if !user.Active {
		return nil, j.fail(ctx, &userID, ReasonUserNotActive, originKey)
	}

	claims := &AccessClaims{
		UserID:   userID,
		TokenID:  parsed.ID,
		IssuedAt: issuedAt,
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Unix()
	}

	j.state.set(user)
	j.claims = claims
	e.metrics.Inc(MetricTokenSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType:     auditTokenSuccess,
		authenticator: AuthenticatorJWT,
		userID:        userID.String(),
		ip:            j.req.ClientIP,
		success:       true,
		metadata:      map[string]string{"jti": parsed.ID},
	})
	return user, nil
}

func (j *JWTAuthenticator) fail(ctx context.Context, userID *uuid.UUID, reason Reason, originKey string) error {
	e := j.engine
	j.state.clear()
	j.claims = nil

	if _, err := e.throttler.RecordFailure(ctx, originKey); err != nil {
		return err
	}

	rec := auditRecord{
		eventType:     auditTokenFailure,
		authenticator: AuthenticatorJWT,
		ip:            j.req.ClientIP,
		reason:        reason,
	}
	if userID != nil {
		rec.userID = userID.String()
	}
	e.metrics.Inc(MetricTokenFailure)
	e.emitAudit(ctx, rec)
	return failure(reason)
}
