package goShield

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/MrEthical07/goShield/identity"
	"github.com/MrEthical07/goShield/internal/audit"
	"github.com/MrEthical07/goShield/jwt"
	"github.com/MrEthical07/goShield/password"
	"github.com/MrEthical07/goShield/session"
	"github.com/MrEthical07/goShield/throttle"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. It is single-use.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	repo      identity.Repository
	backend   throttle.Backend
	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time
	factories map[string]Factory

	built bool
}

// New returns a Builder with the default configuration.
func New() *Builder {
	return &Builder{
		config:    defaultConfig(),
		factories: make(map[string]Factory),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, throttling and JWT revocation.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRepository sets the user and identity persistence.
func (b *Builder) WithRepository(repo identity.Repository) *Builder {
	b.repo = repo
	return b
}

// WithThrottleBackend replaces the Redis throttle backend, e.g. with
// throttle.NewMemoryBackend for a single-process deployment.
func (b *Builder) WithThrottleBackend(backend throttle.Backend) *Builder {
	b.backend = backend
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. Audit.Enabled must also be set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now for expiry and throttle computations.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithAuthenticator registers a custom scheme. Registering a built-in name
// replaces the built-in.
func (b *Builder) WithAuthenticator(name string, factory Factory) *Builder {
	b.factories[strings.TrimSpace(name)] = factory
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires every component. All
// configuration errors surface here.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.repo == nil {
		return nil, errors.New("identity repository required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- AUTHENTICATORS --------
	factories := builtinFactories(cfg)
	for name, factory := range b.factories {
		if name == "" || factory == nil {
			return nil, fmt.Errorf("invalid authenticator registration %q", name)
		}
	}
	maps.Copy(factories, b.factories)
	if _, ok := factories[cfg.DefaultAuthenticator]; !ok {
		return nil, &UnknownAuthenticatorError{Name: cfg.DefaultAuthenticator}
	}

	// -------- IDENTITY STORE --------
	hasher, err := password.NewArgon2(cfg.Password.hasherConfig())
	if err != nil {
		return nil, err
	}
	store, err := identity.NewStore(b.repo, hasher, now)
	if err != nil {
		return nil, err
	}

	// -------- THROTTLE --------
	backend := b.backend
	if backend == nil {
		backend = throttle.NewRedisBackend(b.redis, cfg.Throttle.RedisPrefix)
	}
	throttler, err := throttle.New(backend, cfg.Throttle.Policy(), now)
	if err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	sessions := session.NewStore(b.redis, session.Config{
		Prefix:           cfg.Session.RedisPrefix,
		IdleTimeout:      cfg.Session.IdleTimeout,
		AbsoluteLifetime: cfg.Session.AbsoluteLifetime,
		Now:              now,
	})

	// -------- JWT --------
	var jwtManager *jwt.Manager
	if cfg.JWT.Enabled {
		jwtManager, err = jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.JWT.AccessTTL,
			SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
			PrivateKey:    cfg.JWT.PrivateKey,
			PublicKey:     cfg.JWT.PublicKey,
			Issuer:        cfg.JWT.Issuer,
			Audience:      cfg.JWT.Audience,
			Leeway:        cfg.JWT.Leeway,
			RequireIAT:    true,
		})
		if err != nil {
			return nil, err
		}
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewLogSink(logger)
	}
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, sink)

	b.built = true

	return &Engine{
		config:    cfg,
		logger:    logger,
		store:     store,
		throttler: throttler,
		sessions:  sessions,
		redis:     b.redis,
		jwt:       jwtManager,
		audit:     dispatcher,
		metrics:   NewMetrics(cfg.Metrics),
		factories: factories,
		now:       now,
	}, nil
}
