package identity

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type enumerates credential kinds. (Type, Secret) is unique across the store.
type Type string

const (
	TypeEmailPassword Type = "email_password"
	TypeAccessToken   Type = "access_token"
	TypeRememberToken Type = "remember_token"
	TypeMagicLink     Type = "magic_link"
)

// Valid reports whether t is one of the known identity types.
func (t Type) Valid() bool {
	switch t {
	case TypeEmailPassword, TypeAccessToken, TypeRememberToken, TypeMagicLink:
		return true
	}
	return false
}

// User is the authenticated principal. Email is derived from the user's
// email_password identity and is empty when none exists.
type User struct {
	ID        uuid.UUID
	Username  string
	Email     string
	Active    bool
	Groups    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InGroup reports whether the user belongs to any of groups.
func (u *User) InGroup(groups ...string) bool {
	if u == nil {
		return false
	}
	for _, g := range groups {
		if slices.Contains(u.Groups, g) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Groups = slices.Clone(u.Groups)
	return &c
}

// Identity is a single credential record. Secret is the public lookup value
// (email or token selector); Secret2 is the hashed credential.
type Identity struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Type       Type
	Secret     string
	Secret2    string
	Extra      []byte
	LastUsedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Extra = slices.Clone(i.Extra)
	return &c
}

// NormalizeEmail lowercases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeSecret applies the per-type normalization for public lookup values.
func NormalizeSecret(t Type, secret string) string {
	if t == TypeEmailPassword || t == TypeMagicLink {
		return NormalizeEmail(secret)
	}
	return secret
}
