package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goShield/password"
	"github.com/google/uuid"
)

// Store is the identity service. Every credential write, runtime or
// administrative, hashes through its hashers before reaching the Repository.
type Store struct {
	repo      Repository
	passwords password.Hasher
	tokens    password.Hasher
	now       func() time.Time
	dummyHash string
}

// NewStore wires repo with the password hasher used for email_password
// identities. Token-style identities use password.TokenHasher. now may be nil.
func NewStore(repo Repository, passwords password.Hasher, now func() time.Time) (*Store, error) {
	if repo == nil {
		return nil, errors.New("identity: repository is nil")
	}
	if passwords == nil {
		return nil, errors.New("identity: password hasher is nil")
	}
	if now == nil {
		now = time.Now
	}

	// Unknown identifiers are verified against this hash so a miss costs the
	// same as a wrong password.
	var seed [24]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	dummy, err := passwords.Hash(base64.RawURLEncoding.EncodeToString(seed[:]))
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}

	return &Store{
		repo:      repo,
		passwords: passwords,
		tokens:    password.TokenHasher{},
		now:       now,
		dummyHash: dummy,
	}, nil
}

func (s *Store) hasherFor(t Type) password.Hasher {
	if t == TypeEmailPassword {
		return s.passwords
	}
	return s.tokens
}

// Users

// CreateUser inserts an inactive user.
func (s *Store) CreateUser(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("identity: username is required")
	}
	now := s.now()
	u := &User{
		ID:        uuid.New(),
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.FindUserByUsername(ctx, strings.TrimSpace(username))
}

// FindUserByEmail resolves the owner of the email_password identity for email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	ident, err := s.FindIdentity(ctx, TypeEmailPassword, email)
	if err != nil {
		return nil, err
	}
	return s.repo.GetUser(ctx, ident.UserID)
}

// SaveUser persists Username and Active and bumps UpdatedAt.
func (s *Store) SaveUser(ctx context.Context, u *User) error {
	u.UpdatedAt = s.now()
	return s.repo.UpdateUser(ctx, u)
}

func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteUser(ctx, id)
}

// ListUsers returns all users, optionally those whose email contains
// emailFilter (case-insensitive).
func (s *Store) ListUsers(ctx context.Context, emailFilter string) ([]User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	filter := NormalizeEmail(emailFilter)
	if filter == "" {
		return users, nil
	}
	out := users[:0]
	for _, u := range users {
		if strings.Contains(u.Email, filter) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) AddGroup(ctx context.Context, userID uuid.UUID, group string) error {
	group = strings.TrimSpace(group)
	if group == "" {
		return errors.New("identity: group is required")
	}
	return s.repo.AddGroup(ctx, userID, group)
}

func (s *Store) RemoveGroup(ctx context.Context, userID uuid.UUID, group string) error {
	return s.repo.RemoveGroup(ctx, userID, strings.TrimSpace(group))
}

// Identities

// FindIdentity looks up an identity by type and public secret.
func (s *Store) FindIdentity(ctx context.Context, t Type, secret string) (*Identity, error) {
	secret = NormalizeSecret(t, secret)
	if secret == "" {
		return nil, ErrNotFound
	}
	return s.repo.FindIdentity(ctx, t, secret)
}

// FindIdentityWithUser looks up an identity by type and public secret along
// with its owner.
func (s *Store) FindIdentityWithUser(ctx context.Context, t Type, secret string) (*Identity, *User, error) {
	secret = NormalizeSecret(t, secret)
	if secret == "" {
		return nil, nil, ErrNotFound
	}
	return s.repo.FindIdentityWithUser(ctx, t, secret)
}

// FindUserWithIdentity looks up a user by username along with its identity
// of type t.
func (s *Store) FindUserWithIdentity(ctx context.Context, username string, t Type) (*User, *Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil, ErrNotFound
	}
	return s.repo.FindUserWithIdentity(ctx, username, t)
}

// CreateIdentity hashes plaintext and persists a new identity for userID.
// A (type, secret) collision returns ErrDuplicateIdentity and leaves the
// existing identity untouched.
func (s *Store) CreateIdentity(ctx context.Context, userID uuid.UUID, t Type, secret, plaintext string, extra []byte) (*Identity, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("identity: unknown type %q", t)
	}
	secret = NormalizeSecret(t, secret)
	if secret == "" {
		return nil, errors.New("identity: secret is required")
	}

	hash, err := s.hasherFor(t).Hash(plaintext)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ident := &Identity{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      t,
		Secret:    secret,
		Secret2:   hash,
		Extra:     extra,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertIdentity(ctx, ident); err != nil {
		return nil, err
	}
	return ident, nil
}

// UpdateLastUsed stamps the identity as used now.
func (s *Store) UpdateLastUsed(ctx context.Context, ident *Identity) error {
	now := s.now()
	if err := s.repo.TouchIdentity(ctx, ident.ID, now); err != nil {
		return err
	}
	ident.LastUsedAt = now
	ident.UpdatedAt = now
	return nil
}

// RevokeIdentity deletes the identity of type t with the given selector
// owned by userID. Identities owned by someone else report ErrNotFound.
func (s *Store) RevokeIdentity(ctx context.Context, userID uuid.UUID, t Type, selector string) error {
	ident, err := s.FindIdentity(ctx, t, selector)
	if err != nil {
		return err
	}
	if ident.UserID != userID {
		return ErrNotFound
	}
	return s.repo.DeleteIdentity(ctx, ident.ID)
}

// DeleteIdentity removes ident regardless of owner.
func (s *Store) DeleteIdentity(ctx context.Context, ident *Identity) error {
	return s.repo.DeleteIdentity(ctx, ident.ID)
}

// RevokeAll deletes every identity of type t owned by userID.
func (s *Store) RevokeAll(ctx context.Context, userID uuid.UUID, t Type) (int, error) {
	return s.repo.DeleteIdentities(ctx, userID, t)
}

func (s *Store) ListIdentities(ctx context.Context, userID uuid.UUID, types ...Type) ([]Identity, error) {
	return s.repo.ListIdentities(ctx, userID, types...)
}

// Verify checks plaintext against ident's stored hash. A nil identity is
// verified against a dummy hash and always fails.
func (s *Store) Verify(ident *Identity, plaintext string) bool {
	if ident == nil {
		s.passwords.Verify(plaintext, s.dummyHash)
		return false
	}
	return s.hasherFor(ident.Type).Verify(plaintext, ident.Secret2)
}

// NeedsRehash reports whether ident's hash should be upgraded.
func (s *Store) NeedsRehash(ident *Identity) bool {
	return s.hasherFor(ident.Type).NeedsRehash(ident.Secret2)
}

// ChangeSecret re-hashes ident with plaintext and persists it.
func (s *Store) ChangeSecret(ctx context.Context, ident *Identity, plaintext string) error {
	hash, err := s.hasherFor(ident.Type).Hash(plaintext)
	if err != nil {
		return err
	}
	now := s.now()
	if err := s.repo.UpdateIdentitySecret2(ctx, ident.ID, hash, now); err != nil {
		return err
	}
	ident.Secret2 = hash
	ident.UpdatedAt = now
	return nil
}

// UpgradeSecret replaces ident's hash with a fresh one for plaintext, but
// only while the stored hash is still the one ident was read with. A
// concurrent password change wins and reports false.
func (s *Store) UpgradeSecret(ctx context.Context, ident *Identity, plaintext string) (bool, error) {
	hash, err := s.hasherFor(ident.Type).Hash(plaintext)
	if err != nil {
		return false, err
	}
	now := s.now()
	ok, err := s.repo.SwapSecret2(ctx, ident.ID, ident.Secret2, hash, ident.Extra, now)
	if err != nil || !ok {
		return false, err
	}
	ident.Secret2 = hash
	ident.UpdatedAt = now
	ident.LastUsedAt = now
	return true, nil
}

// ChangeIdentifier re-keys ident under a new public secret.
func (s *Store) ChangeIdentifier(ctx context.Context, ident *Identity, secret string) error {
	secret = NormalizeSecret(ident.Type, secret)
	if secret == "" {
		return errors.New("identity: secret is required")
	}
	now := s.now()
	if err := s.repo.UpdateIdentitySecret(ctx, ident.ID, secret, now); err != nil {
		return err
	}
	ident.Secret = secret
	ident.UpdatedAt = now
	return nil
}

// RotateSecret atomically replaces ident's hash with one for plaintext,
// provided nobody rotated it since ident was read. It reports false when a
// concurrent rotation won.
func (s *Store) RotateSecret(ctx context.Context, ident *Identity, plaintext string, extra []byte) (bool, error) {
	hash, err := s.hasherFor(ident.Type).Hash(plaintext)
	if err != nil {
		return false, err
	}
	now := s.now()
	ok, err := s.repo.SwapSecret2(ctx, ident.ID, ident.Secret2, hash, extra, now)
	if err != nil || !ok {
		return false, err
	}
	ident.Secret2 = hash
	ident.Extra = extra
	ident.UpdatedAt = now
	ident.LastUsedAt = now
	return true, nil
}
