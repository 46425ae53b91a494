package goShield

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goShield/identity"
	"github.com/MrEthical07/goShield/internal/audit"
	"github.com/MrEthical07/goShield/jwt"
	"github.com/MrEthical07/goShield/session"
	"github.com/MrEthical07/goShield/throttle"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Engine is the process-wide authentication core. It is immutable after
// Build and safe for concurrent use; per-request state lives in Auth.
type Engine struct {
	config    Config
	logger    *slog.Logger
	store     *identity.Store
	throttler *throttle.Throttler
	sessions  *session.Store
	redis     redis.UniversalClient
	jwt       *jwt.Manager
	audit     *audit.Dispatcher
	metrics   *Metrics
	factories map[string]Factory
	now       func() time.Time
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Metrics returns the engine counters for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Authenticators lists registered authenticator names, sorted.
func (e *Engine) Authenticators() []string {
	return slices.Sorted(maps.Keys(e.factories))
}

// Auth returns the request-scoped facade for req. req is updated in place
// with rotated session and remember values.
func (e *Engine) Auth(req *Request) *Auth {
	if req == nil {
		req = &Request{}
	}
	return &Auth{
		engine:    e,
		req:       req,
		instances: make(map[string]Authenticator, 1),
	}
}

// Admin returns the administrative API.
func (e *Engine) Admin() *Admin {
	return &Admin{engine: e}
}

// Register creates a user with an email_password identity through the
// self-service path. Any uniqueness collision returns ErrAlreadyRegistered
// without naming the field.
func (e *Engine) Register(ctx context.Context, username, email, plaintext string) (*identity.User, error) {
	if e == nil {
		return nil, ErrEngineNotInitialized
	}
	u, err := e.createAccount(ctx, username, email, plaintext, e.config.Registration.AutoActivate)
	if errors.Is(err, identity.ErrDuplicateUsername) || errors.Is(err, identity.ErrDuplicateIdentity) {
		return nil, ErrAlreadyRegistered
	}
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditRecord{eventType: auditRegister, userID: u.ID.String(), success: true})
	return u, nil
}

// Ping checks Redis reachability.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	return e.sessions.Ping(ctx)
}

// ForgetUser runs Forget on every registered authenticator for userID,
// revoking all of the user's sessions and tokens.
func (e *Engine) ForgetUser(ctx context.Context, userID uuid.UUID) error {
	if e == nil {
		return ErrEngineNotInitialized
	}
	req := &Request{}
	var errs []error
	for name, factory := range e.factories {
		if err := factory(e, req).Forget(ctx, userID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) createAccount(ctx context.Context, username, email, plaintext string, active bool) (*identity.User, error) {
	if identity.NormalizeEmail(email) == "" {
		return nil, errors.New("email is required")
	}
	if err := e.checkPasswordPolicy(plaintext); err != nil {
		return nil, err
	}

	u, err := e.store.CreateUser(ctx, username)
	if err != nil {
		return nil, err
	}

	if _, err := e.store.CreateIdentity(ctx, u.ID, identity.TypeEmailPassword, email, plaintext, nil); err != nil {
		if delErr := e.store.DeleteUser(ctx, u.ID); delErr != nil {
			e.logger.Warn("goshield: rollback user after identity failure", "user_id", u.ID, "error", delErr)
		}
		return nil, err
	}
	e.metrics.Inc(MetricUserCreated)
	e.metrics.Inc(MetricIdentityCreated)

	if active {
		u.Active = true
		if err := e.store.SaveUser(ctx, u); err != nil {
			return nil, err
		}
	}

	return e.store.GetUser(ctx, u.ID)
}

func (e *Engine) checkPasswordPolicy(plaintext string) error {
	if utf8.RuneCountInString(plaintext) < e.config.Password.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	if limit := e.config.Password.MaxPasswordBytes; limit > 0 && len(plaintext) > limit {
		return fmt.Errorf("%w: must be at most %d bytes", ErrPasswordPolicy, e.config.Password.MaxPasswordBytes)
	}
	return nil
}

// loadUser resolves userID for an authenticator. A missing user is
// reported as (nil, nil).
func (e *Engine) loadUser(ctx context.Context, userID uuid.UUID) (*identity.User, error) {
	u, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// touch stamps ident as used. It never fails the caller.
func (e *Engine) touch(ctx context.Context, ident *identity.Identity) {
	if err := e.store.UpdateLastUsed(ctx, ident); err != nil {
		e.logger.Warn("goshield: update last used", "identity_id", ident.ID, "error", err)
	}
}
