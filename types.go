package goShield

import (
	"encoding/json"
	"slices"
	"time"
)

// Credentials is what a login endpoint submits. The session authenticator
// reads Email or Username with Password; token authenticators read Token.
type Credentials struct {
	Email    string
	Username string
	Password string
	Token    string
	Remember bool
}

// Request carries the per-request transport state an Auth needs: client
// origin plus the session, remember and bearer values presented by the
// client. Authenticators record replacement cookie values on it; the
// transport adapter writes them back with SessionUpdate and RememberUpdate.
type Request struct {
	ClientIP      string
	UserAgent     string
	SessionID     string
	RememberToken string
	BearerToken   string

	sessionChanged  bool
	rememberChanged bool
}

// SessionUpdate returns the session id the client must store, and whether
// it changed during this request. An empty id with changed set means the
// cookie must be cleared.
func (r *Request) SessionUpdate() (string, bool) {
	return r.SessionID, r.sessionChanged
}

// RememberUpdate is SessionUpdate for the remember-me token.
func (r *Request) RememberUpdate() (string, bool) {
	return r.RememberToken, r.rememberChanged
}

func (r *Request) setSession(id string) {
	r.SessionID = id
	r.sessionChanged = true
}

func (r *Request) setRemember(token string) {
	r.RememberToken = token
	r.rememberChanged = true
}

// AccessToken describes a bearer token. The raw token is only returned once,
// at generation.
type AccessToken struct {
	Selector   string
	Name       string
	Scopes     []string
	ExpiresAt  time.Time
	LastUsedAt time.Time
	CreatedAt  time.Time
}

// ScopeAll grants every scope.
const ScopeAll = "*"

// Can reports whether the token grants scope.
func (t *AccessToken) Can(scope string) bool {
	if t == nil {
		return false
	}
	return slices.Contains(t.Scopes, ScopeAll) || slices.Contains(t.Scopes, scope)
}

// Expired reports whether the token has an expiry that is not after now.
func (t *AccessToken) Expired(now time.Time) bool {
	return t != nil && !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// tokenExtra is the JSON stored in Identity.Extra for access and remember
// tokens.
type tokenExtra struct {
	Name      string    `json:"name,omitempty"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func (x tokenExtra) marshal() []byte {
	data, _ := json.Marshal(x)
	return data
}

func parseTokenExtra(data []byte) tokenExtra {
	var x tokenExtra
	if len(data) > 0 {
		_ = json.Unmarshal(data, &x)
	}
	return x
}

func (x tokenExtra) expired(now time.Time) bool {
	return !x.ExpiresAt.IsZero() && !now.Before(x.ExpiresAt)
}
