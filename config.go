package goShield

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/MrEthical07/goShield/password"
	"github.com/MrEthical07/goShield/throttle"
)

// Config is the complete engine configuration. Start from DefaultConfig or
// LoadConfigFile; the Builder validates it at Build.
type Config struct {
	// DefaultAuthenticator is used when Auth.Use is called with an empty name.
	DefaultAuthenticator string `toml:"default_authenticator"`

	Session      SessionConfig      `toml:"session"`
	Remember     RememberConfig     `toml:"remember"`
	AccessToken  AccessTokenConfig  `toml:"access_token"`
	JWT          JWTConfig          `toml:"jwt"`
	Password     PasswordConfig     `toml:"password"`
	Throttle     ThrottleConfig     `toml:"throttle"`
	Registration RegistrationConfig `toml:"registration"`
	Audit        AuditConfig        `toml:"audit"`
	Metrics      MetricsConfig      `toml:"metrics"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the server-side session store used by the
// session authenticator.
type SessionConfig struct {
	RedisPrefix      string        `toml:"redis_prefix"`
	IdleTimeout      time.Duration `toml:"idle_timeout"`
	AbsoluteLifetime time.Duration `toml:"absolute_lifetime"`
}

// RememberConfig controls persistent "remember me" tokens.
type RememberConfig struct {
	Enabled bool          `toml:"enabled"`
	TTL     time.Duration `toml:"ttl"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// AccessTokenConfig controls bearer access tokens. A zero DefaultTTL issues
// tokens that never expire.
type AccessTokenConfig struct {
	DefaultTTL time.Duration `toml:"default_ttl"`
}

// JWTConfig controls the optional jwt authenticator. Keys may be given
// inline or as file paths in TOML.
type JWTConfig struct {
	Enabled          bool          `toml:"enabled"`
	AccessTTL        time.Duration `toml:"access_ttl"`
	SigningMethod    string        `toml:"signing_method"` // "ed25519" (default), "hs256"
	PrivateKey       []byte        `toml:"-"`
	PublicKey        []byte        `toml:"-"`
	PrivateKeyFile   string        `toml:"private_key_file"`
	PublicKeyFile    string        `toml:"public_key_file"`
	Issuer           string        `toml:"issuer"`
	Audience         string        `toml:"audience"`
	Leeway           time.Duration `toml:"leeway"`
	RevocationPrefix string        `toml:"revocation_prefix"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and the minimum policy for
// new passwords.
type PasswordConfig struct {
	Memory           uint32 `toml:"memory"`
	Time             uint32 `toml:"time"`
	Parallelism      uint8  `toml:"parallelism"`
	SaltLength       uint32 `toml:"salt_length"`
	KeyLength        uint32 `toml:"key_length"`
	MaxPasswordBytes int    `toml:"max_password_bytes"`
	MinLength        int    `toml:"min_length"`
	UpgradeOnLogin   bool   `toml:"upgrade_on_login"`
}

func (c PasswordConfig) hasherConfig() password.Config {
	return password.Config{
		Memory:           c.Memory,
		Time:             c.Time,
		Parallelism:      c.Parallelism,
		SaltLength:       c.SaltLength,
		KeyLength:        c.KeyLength,
		MaxPasswordBytes: c.MaxPasswordBytes,
	}
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig controls login and token-lookup throttling. See
// throttle.Policy for the cool-down formula.
type ThrottleConfig struct {
	RedisPrefix string        `toml:"redis_prefix"`
	Threshold   int           `toml:"threshold"`
	Base        time.Duration `toml:"base"`
	ExponentCap int           `toml:"exponent_cap"`
	MaxCooldown time.Duration `toml:"max_cooldown"`
	Window      time.Duration `toml:"window"`
}

// Policy converts the configuration into a throttle.Policy.
func (c ThrottleConfig) Policy() throttle.Policy {
	return throttle.Policy{
		Threshold:   c.Threshold,
		Base:        c.Base,
		ExponentCap: c.ExponentCap,
		MaxCooldown: c.MaxCooldown,
		Window:      c.Window,
	}
}

// RegistrationConfig controls self-service registration.
type RegistrationConfig struct {
	AutoActivate bool `toml:"auto_activate"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full"`
}

// MetricsConfig enables the in-process counters and the attempt latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	tp := throttle.DefaultPolicy()

	return Config{
		DefaultAuthenticator: AuthenticatorSession,
		Session: SessionConfig{
			RedisPrefix:      "ss",
			IdleTimeout:      2 * time.Hour,
			AbsoluteLifetime: 24 * time.Hour,
		},
		Remember: RememberConfig{
			Enabled: true,
			TTL:     30 * 24 * time.Hour,
		},
		AccessToken: AccessTokenConfig{
			DefaultTTL: 0,
		},
		JWT: JWTConfig{
			Enabled:          false,
			AccessTTL:        5 * time.Minute,
			SigningMethod:    "ed25519",
			Issuer:           "goshield",
			RevocationPrefix: "jwt:nbf:",
		},
		Password: PasswordConfig{
			Memory:           pw.Memory,
			Time:             pw.Time,
			Parallelism:      pw.Parallelism,
			SaltLength:       pw.SaltLength,
			KeyLength:        pw.KeyLength,
			MaxPasswordBytes: pw.MaxPasswordBytes,
			MinLength:        8,
			UpgradeOnLogin:   true,
		},
		Throttle: ThrottleConfig{
			RedisPrefix: "th:",
			Threshold:   tp.Threshold,
			Base:        tp.Base,
			ExponentCap: tp.ExponentCap,
			MaxCooldown: tp.MaxCooldown,
			Window:      tp.Window,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Validate checks the configuration. Every error is a setup-time failure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DefaultAuthenticator) == "" {
		return errors.New("DefaultAuthenticator must be set")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must be set")
	}
	if c.Session.AbsoluteLifetime <= 0 {
		return errors.New("Session AbsoluteLifetime must be > 0")
	}
	if c.Session.IdleTimeout < 0 || c.Session.IdleTimeout > c.Session.AbsoluteLifetime {
		return errors.New("Session IdleTimeout must be within [0, AbsoluteLifetime]")
	}
	if c.Remember.Enabled && c.Remember.TTL <= 0 {
		return errors.New("Remember TTL must be > 0 when enabled")
	}
	if c.AccessToken.DefaultTTL < 0 {
		return errors.New("AccessToken DefaultTTL must be >= 0")
	}

	// JWT
	if c.JWT.Enabled {
		if c.JWT.AccessTTL <= 0 {
			return errors.New("JWT AccessTTL must be > 0")
		}
		switch c.JWT.SigningMethod {
		case "ed25519":
			if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
				return errors.New("ed25519 requires PrivateKey and PublicKey")
			}
		case "hs256":
			if len(c.JWT.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
			}
		default:
			return errors.New("unsupported JWT signing method")
		}
		if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
			return errors.New("JWT Leeway must be within [0, 2m]")
		}
		if c.JWT.RevocationPrefix == "" {
			return errors.New("JWT RevocationPrefix must be set")
		}
	}

	// Password
	if _, err := password.NewArgon2(c.Password.hasherConfig()); err != nil {
		return err
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Throttle
	if c.Throttle.RedisPrefix == "" {
		return errors.New("Throttle RedisPrefix must be set")
	}
	if err := c.Throttle.Policy().Validate(); err != nil {
		return err
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

// LoadConfigFile decodes a TOML file over the defaults. Durations are Go
// duration strings ("15m"). JWT keys referenced by path are read from disk.
func LoadConfigFile(path string) (Config, error) {
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	if cfg.JWT.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.JWT.PrivateKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read JWT private key: %w", err)
		}
		cfg.JWT.PrivateKey = key
	}
	if cfg.JWT.PublicKeyFile != "" {
		key, err := os.ReadFile(cfg.JWT.PublicKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read JWT public key: %w", err)
		}
		cfg.JWT.PublicKey = key
	}

	return cfg, nil
}

func cloneConfig(c Config) Config {
	out := c
	out.JWT.PrivateKey = slices.Clone(c.JWT.PrivateKey)
	out.JWT.PublicKey = slices.Clone(c.JWT.PublicKey)
	return out
}
