package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a user or identity does not exist.
	ErrNotFound = errors.New("identity: not found")
	// ErrDuplicateIdentity is returned when (type, secret) is already taken.
	ErrDuplicateIdentity = errors.New("identity: duplicate identity")
	// ErrDuplicateUsername is returned when a username is already taken.
	ErrDuplicateUsername = errors.New("identity: duplicate username")
	// ErrStoreUnavailable wraps persistence failures. It is never a credential failure.
	ErrStoreUnavailable = errors.New("identity: store unavailable")
)

// Repository is the persistence contract for users, identities and groups.
//
// Implementations must enforce uniqueness of (Type, Secret) and of Username,
// apply every identity write atomically per row, and populate User.Email and
// User.Groups on every user read. Infrastructure failures must wrap
// ErrStoreUnavailable.
type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	// DeleteUser removes the user with its identities and group memberships.
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context) ([]User, error)

	AddGroup(ctx context.Context, userID uuid.UUID, group string) error
	RemoveGroup(ctx context.Context, userID uuid.UUID, group string) error

	InsertIdentity(ctx context.Context, ident *Identity) error
	FindIdentity(ctx context.Context, t Type, secret string) (*Identity, error)
	// FindIdentityWithUser resolves the identity of type t keyed by secret
	// together with its owner in one round trip, so a hit costs the same as a
	// miss.
	FindIdentityWithUser(ctx context.Context, t Type, secret string) (*Identity, *User, error)
	// FindUserWithIdentity resolves a user by username together with its
	// oldest identity of type t. A user without one is ErrNotFound.
	FindUserWithIdentity(ctx context.Context, username string, t Type) (*User, *Identity, error)
	// ListIdentities returns identities of userID, restricted to types when given.
	ListIdentities(ctx context.Context, userID uuid.UUID, types ...Type) ([]Identity, error)
	// UpdateIdentitySecret re-keys an identity under a new public secret.
	UpdateIdentitySecret(ctx context.Context, id uuid.UUID, secret string, at time.Time) error
	// UpdateIdentitySecret2 overwrites the stored hash, leaving Secret and
	// Extra untouched.
	UpdateIdentitySecret2(ctx context.Context, id uuid.UUID, secret2 string, at time.Time) error
	// SwapSecret2 replaces Secret2 and Extra only if Secret2 still equals
	// oldSecret2. It reports whether the swap happened.
	SwapSecret2(ctx context.Context, id uuid.UUID, oldSecret2, newSecret2 string, extra []byte, at time.Time) (bool, error)
	TouchIdentity(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteIdentity(ctx context.Context, id uuid.UUID) error
	// DeleteIdentities removes every identity of type t owned by userID.
	DeleteIdentities(ctx context.Context, userID uuid.UUID, t Type) (int, error)
}
