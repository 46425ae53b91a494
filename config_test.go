package goShield

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty default authenticator", func(c *Config) { c.DefaultAuthenticator = " " }},
		{"empty session prefix", func(c *Config) { c.Session.RedisPrefix = "" }},
		{"zero absolute lifetime", func(c *Config) { c.Session.AbsoluteLifetime = 0 }},
		{"idle above absolute", func(c *Config) { c.Session.IdleTimeout = 48 * time.Hour }},
		{"remember without ttl", func(c *Config) { c.Remember.TTL = 0 }},
		{"negative access token ttl", func(c *Config) { c.AccessToken.DefaultTTL = -time.Second }},
		{"jwt zero ttl", func(c *Config) {
			c.JWT.Enabled = true
			c.JWT.SigningMethod = "hs256"
			c.JWT.PrivateKey = testJWTKey
			c.JWT.AccessTTL = 0
		}},
		{"jwt short hs256 key", func(c *Config) {
			c.JWT.Enabled = true
			c.JWT.SigningMethod = "hs256"
			c.JWT.PrivateKey = []byte("short")
		}},
		{"jwt ed25519 without keys", func(c *Config) { c.JWT.Enabled = true }},
		{"jwt unknown method", func(c *Config) {
			c.JWT.Enabled = true
			c.JWT.SigningMethod = "rs256"
		}},
		{"jwt leeway too large", func(c *Config) {
			c.JWT.Enabled = true
			c.JWT.SigningMethod = "hs256"
			c.JWT.PrivateKey = testJWTKey
			c.JWT.Leeway = time.Hour
		}},
		{"weak argon2", func(c *Config) { c.Password.Time = 0 }},
		{"zero min length", func(c *Config) { c.Password.MinLength = 0 }},
		{"empty throttle prefix", func(c *Config) { c.Throttle.RedisPrefix = "" }},
		{"throttle max below base", func(c *Config) { c.Throttle.MaxCooldown = time.Millisecond }},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigRememberDisabledNeedsNoTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Remember.Enabled = false
	cfg.Remember.TTL = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "jwt.key")
	if err := os.WriteFile(keyPath, testJWTKey, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	path := filepath.Join(dir, "goshield.toml")
	body := `
default_authenticator = "tokens"

[session]
idle_timeout = "30m"

[jwt]
enabled = true
signing_method = "hs256"
private_key_file = "` + filepath.ToSlash(keyPath) + `"
access_ttl = "10m"

[throttle]
threshold = 6
max_cooldown = "5m"

[registration]
auto_activate = true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.DefaultAuthenticator != AuthenticatorTokens {
		t.Fatalf("unexpected default authenticator %q", cfg.DefaultAuthenticator)
	}
	if cfg.Session.IdleTimeout != 30*time.Minute {
		t.Fatalf("unexpected idle timeout %s", cfg.Session.IdleTimeout)
	}
	if cfg.Session.AbsoluteLifetime != 24*time.Hour {
		t.Fatalf("expected default absolute lifetime kept, got %s", cfg.Session.AbsoluteLifetime)
	}
	if !cfg.JWT.Enabled || cfg.JWT.AccessTTL != 10*time.Minute || string(cfg.JWT.PrivateKey) != string(testJWTKey) {
		t.Fatalf("unexpected jwt config %+v", cfg.JWT)
	}
	if cfg.Throttle.Threshold != 6 || cfg.Throttle.MaxCooldown != 5*time.Minute {
		t.Fatalf("unexpected throttle config %+v", cfg.Throttle)
	}
	if !cfg.Registration.AutoActivate {
		t.Fatal("expected auto activation")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfigFile(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("[session\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfigFile(bad); err == nil {
		t.Fatal("expected decode error")
	}

	missingKey := filepath.Join(dir, "key.toml")
	if err := os.WriteFile(missingKey, []byte("[jwt]\nprivate_key_file = \"/nonexistent/key\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfigFile(missingKey); err == nil {
		t.Fatal("expected key read error")
	}
}

func TestBuilderCopiesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	b := New().WithConfig(cfg)
	cfg.JWT.PrivateKey[0] = 'X'
	if b.config.JWT.PrivateKey[0] != '0' {
		t.Fatal("builder must not alias caller key material")
	}
}
