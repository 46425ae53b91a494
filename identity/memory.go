package identity

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type identityKey struct {
	t      Type
	secret string
}

// MemoryRepository is an in-process Repository for tests and single-node
// development. All operations are serialized by one mutex.
type MemoryRepository struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]*User
	usernames  map[string]uuid.UUID
	groups     map[uuid.UUID][]string
	identities map[uuid.UUID]*Identity
	index      map[identityKey]uuid.UUID
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:      make(map[uuid.UUID]*User),
		usernames:  make(map[string]uuid.UUID),
		groups:     make(map[uuid.UUID][]string),
		identities: make(map[uuid.UUID]*Identity),
		index:      make(map[identityKey]uuid.UUID),
	}
}

func (m *MemoryRepository) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.usernames[u.Username]; ok && u.Username != "" {
		return ErrDuplicateUsername
	}
	stored := u.Clone()
	stored.Groups = nil
	stored.Email = ""
	m.users[u.ID] = stored
	if u.Username != "" {
		m.usernames[u.Username] = u.ID
	}
	return nil
}

func (m *MemoryRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.hydrate(u), nil
}

func (m *MemoryRepository) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[username]
	if !ok {
		return nil, ErrNotFound
	}
	return m.hydrate(m.users[id]), nil
}

func (m *MemoryRepository) UpdateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if u.Username != cur.Username {
		if owner, taken := m.usernames[u.Username]; taken && owner != u.ID {
			return ErrDuplicateUsername
		}
		delete(m.usernames, cur.Username)
		if u.Username != "" {
			m.usernames[u.Username] = u.ID
		}
	}
	cur.Username = u.Username
	cur.Active = u.Active
	cur.UpdatedAt = u.UpdatedAt
	return nil
}

func (m *MemoryRepository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	for identID, ident := range m.identities {
		if ident.UserID == id {
			delete(m.index, identityKey{ident.Type, ident.Secret})
			delete(m.identities, identID)
		}
	}
	delete(m.groups, id)
	delete(m.usernames, u.Username)
	delete(m.users, id)
	return nil
}

func (m *MemoryRepository) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *m.hydrate(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Username < out[j].Username
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRepository) AddGroup(ctx context.Context, userID uuid.UUID, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	if !slices.Contains(m.groups[userID], group) {
		m.groups[userID] = append(m.groups[userID], group)
	}
	return nil
}

func (m *MemoryRepository) RemoveGroup(ctx context.Context, userID uuid.UUID, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	m.groups[userID] = slices.DeleteFunc(m.groups[userID], func(g string) bool { return g == group })
	return nil
}

func (m *MemoryRepository) InsertIdentity(ctx context.Context, ident *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[ident.UserID]; !ok {
		return ErrNotFound
	}
	key := identityKey{ident.Type, ident.Secret}
	if _, ok := m.index[key]; ok {
		return ErrDuplicateIdentity
	}
	m.identities[ident.ID] = ident.Clone()
	m.index[key] = ident.ID
	return nil
}

func (m *MemoryRepository) FindIdentity(ctx context.Context, t Type, secret string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.index[identityKey{t, secret}]
	if !ok {
		return nil, ErrNotFound
	}
	return m.identities[id].Clone(), nil
}

func (m *MemoryRepository) FindIdentityWithUser(ctx context.Context, t Type, secret string) (*Identity, *User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.index[identityKey{t, secret}]
	if !ok {
		return nil, nil, ErrNotFound
	}
	ident := m.identities[id]
	u, ok := m.users[ident.UserID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	return ident.Clone(), m.hydrate(u), nil
}

func (m *MemoryRepository) FindUserWithIdentity(ctx context.Context, username string, t Type) (*User, *Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[username]
	if !ok || username == "" {
		return nil, nil, ErrNotFound
	}
	var oldest *Identity
	for _, ident := range m.identities {
		if ident.UserID != id || ident.Type != t {
			continue
		}
		if oldest == nil || ident.CreatedAt.Before(oldest.CreatedAt) {
			oldest = ident
		}
	}
	if oldest == nil {
		return nil, nil, ErrNotFound
	}
	return m.hydrate(m.users[id]), oldest.Clone(), nil
}

func (m *MemoryRepository) ListIdentities(ctx context.Context, userID uuid.UUID, types ...Type) ([]Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Identity
	for _, ident := range m.identities {
		if ident.UserID != userID {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, ident.Type) {
			continue
		}
		out = append(out, *ident.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) UpdateIdentitySecret(ctx context.Context, id uuid.UUID, secret string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.identities[id]
	if !ok {
		return ErrNotFound
	}
	if secret != cur.Secret {
		newKey := identityKey{cur.Type, secret}
		if _, taken := m.index[newKey]; taken {
			return ErrDuplicateIdentity
		}
		delete(m.index, identityKey{cur.Type, cur.Secret})
		m.index[newKey] = cur.ID
	}
	cur.Secret = secret
	cur.UpdatedAt = at
	return nil
}

func (m *MemoryRepository) UpdateIdentitySecret2(ctx context.Context, id uuid.UUID, secret2 string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.identities[id]
	if !ok {
		return ErrNotFound
	}
	cur.Secret2 = secret2
	cur.UpdatedAt = at
	return nil
}

func (m *MemoryRepository) SwapSecret2(ctx context.Context, id uuid.UUID, oldSecret2, newSecret2 string, extra []byte, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.identities[id]
	if !ok {
		return false, nil
	}
	if cur.Secret2 != oldSecret2 {
		return false, nil
	}
	cur.Secret2 = newSecret2
	cur.Extra = slices.Clone(extra)
	cur.UpdatedAt = at
	cur.LastUsedAt = at
	return true, nil
}

func (m *MemoryRepository) TouchIdentity(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.identities[id]
	if !ok {
		return ErrNotFound
	}
	cur.LastUsedAt = at
	cur.UpdatedAt = at
	return nil
}

func (m *MemoryRepository) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.identities[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.index, identityKey{cur.Type, cur.Secret})
	delete(m.identities, id)
	return nil
}

func (m *MemoryRepository) DeleteIdentities(ctx context.Context, userID uuid.UUID, t Type) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, ident := range m.identities {
		if ident.UserID == userID && ident.Type == t {
			delete(m.index, identityKey{ident.Type, ident.Secret})
			delete(m.identities, id)
			n++
		}
	}
	return n, nil
}

// hydrate copies u and fills derived fields. Caller holds mu.
func (m *MemoryRepository) hydrate(u *User) *User {
	out := u.Clone()
	out.Groups = slices.Clone(m.groups[u.ID])
	var first *Identity
	for _, ident := range m.identities {
		if ident.UserID != u.ID || ident.Type != TypeEmailPassword {
			continue
		}
		if first == nil || ident.CreatedAt.Before(first.CreatedAt) {
			first = ident
		}
	}
	if first != nil {
		out.Email = first.Secret
	}
	return out
}
