package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goShield/identity"
	"github.com/google/uuid"
)

// Repository is a PostgreSQL-backed identity.Repository over DBTX.
type Repository struct {
	db DBTX
}

var _ identity.Repository = (*Repository)(nil)

// New constructs a repository bound to db.
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

const userColumns = `
	SELECT u.id, COALESCE(u.username, ''), u.active, u.created_at, u.updated_at,
	       COALESCE((SELECT i.secret FROM identities i
	                 WHERE i.user_id = u.id AND i.type = $1
	                 ORDER BY i.created_at LIMIT 1), '')
	FROM users u`

const identityColumns = `
	SELECT id, user_id, type, secret, secret2, extra, last_used_at, created_at, updated_at
	FROM identities`

// loginColumns joins an identity to its owner. $1 is the lookup key, $2 the
// identity type and $3 the email identity type; groups come back as a JSON
// array so the whole read is one round trip.
const loginColumns = `
	SELECT i.id, i.user_id, i.type, i.secret, i.secret2, i.extra, i.last_used_at, i.created_at, i.updated_at,
	       u.id, COALESCE(u.username, ''), u.active, u.created_at, u.updated_at,
	       COALESCE((SELECT e.secret FROM identities e
	                 WHERE e.user_id = u.id AND e.type = $3
	                 ORDER BY e.created_at LIMIT 1), ''),
	       COALESCE((SELECT json_agg(g.name ORDER BY g.created_at, g.name) FROM user_groups g
	                 WHERE g.user_id = u.id), '[]')
	FROM identities i
	JOIN users u ON u.id = i.user_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*identity.User, error) {
	u := &identity.User{}
	if err := s.Scan(&u.ID, &u.Username, &u.Active, &u.CreatedAt, &u.UpdatedAt, &u.Email); err != nil {
		return nil, err
	}
	return u, nil
}

func scanIdentity(s scanner) (*identity.Identity, error) {
	var (
		ident    identity.Identity
		typ      string
		lastUsed sql.NullTime
	)
	err := s.Scan(&ident.ID, &ident.UserID, &typ, &ident.Secret, &ident.Secret2,
		&ident.Extra, &lastUsed, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ident.Type = identity.Type(typ)
	if lastUsed.Valid {
		ident.LastUsedAt = lastUsed.Time
	}
	return &ident, nil
}

func (r *Repository) CreateUser(ctx context.Context, u *identity.User) error {
	query := `
		INSERT INTO users (id, username, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, u.ID, nullString(u.Username), u.Active, u.CreatedAt, u.UpdatedAt)
	return mapError(err)
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	row := r.db.QueryRowContext(ctx, userColumns+` WHERE u.id = $2`, string(identity.TypeEmailPassword), id)
	return r.loadUser(ctx, row)
}

func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*identity.User, error) {
	if username == "" {
		return nil, identity.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, userColumns+` WHERE u.username = $2`, string(identity.TypeEmailPassword), username)
	return r.loadUser(ctx, row)
}

func (r *Repository) loadUser(ctx context.Context, row *sql.Row) (*identity.User, error) {
	u, err := scanUser(row)
	if err != nil {
		return nil, mapError(err)
	}
	groups, err := r.groups(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Groups = groups
	return u, nil
}

func (r *Repository) groups(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `
		SELECT name FROM user_groups
		WHERE user_id = $1
		ORDER BY created_at, name
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err)
		}
		out = append(out, name)
	}
	return out, mapError(rows.Err())
}

func (r *Repository) UpdateUser(ctx context.Context, u *identity.User) error {
	query := `
		UPDATE users SET username = $2, active = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, u.ID, nullString(u.Username), u.Active, u.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

// DeleteUser relies on ON DELETE CASCADE for identities and groups.
func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (r *Repository) ListUsers(ctx context.Context) ([]identity.User, error) {
	rows, err := r.db.QueryContext(ctx, userColumns+` ORDER BY u.created_at, u.username`, string(identity.TypeEmailPassword))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []identity.User
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError(err)
		}
		index[u.ID] = len(out)
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	if len(out) == 0 {
		return out, nil
	}

	grows, err := r.db.QueryContext(ctx, `SELECT user_id, name FROM user_groups ORDER BY created_at, name`)
	if err != nil {
		return nil, mapError(err)
	}
	defer grows.Close()
	for grows.Next() {
		var (
			userID uuid.UUID
			name   string
		)
		if err := grows.Scan(&userID, &name); err != nil {
			return nil, mapError(err)
		}
		if i, ok := index[userID]; ok {
			out[i].Groups = append(out[i].Groups, name)
		}
	}
	return out, mapError(grows.Err())
}

func (r *Repository) AddGroup(ctx context.Context, userID uuid.UUID, group string) error {
	query := `
		INSERT INTO user_groups (user_id, name)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, userID, group)
	return mapError(err)
}

func (r *Repository) RemoveGroup(ctx context.Context, userID uuid.UUID, group string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_groups WHERE user_id = $1 AND name = $2`, userID, group)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	// Nothing removed: distinguish a missing membership from a missing user.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return mapError(err)
	}
	if !exists {
		return identity.ErrNotFound
	}
	return nil
}

func (r *Repository) InsertIdentity(ctx context.Context, ident *identity.Identity) error {
	query := `
		INSERT INTO identities (id, user_id, type, secret, secret2, extra, last_used_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	lastUsed := sql.NullTime{Time: ident.LastUsedAt, Valid: !ident.LastUsedAt.IsZero()}
	_, err := r.db.ExecContext(ctx, query, ident.ID, ident.UserID, string(ident.Type), ident.Secret,
		ident.Secret2, ident.Extra, lastUsed, ident.CreatedAt, ident.UpdatedAt)
	return mapError(err)
}

func (r *Repository) FindIdentity(ctx context.Context, t identity.Type, secret string) (*identity.Identity, error) {
	row := r.db.QueryRowContext(ctx, identityColumns+` WHERE type = $1 AND secret = $2`, string(t), secret)
	ident, err := scanIdentity(row)
	if err != nil {
		return nil, mapError(err)
	}
	return ident, nil
}

func (r *Repository) FindIdentityWithUser(ctx context.Context, t identity.Type, secret string) (*identity.Identity, *identity.User, error) {
	row := r.db.QueryRowContext(ctx, loginColumns+` WHERE i.secret = $1 AND i.type = $2`,
		secret, string(t), string(identity.TypeEmailPassword))
	return scanLogin(row)
}

func (r *Repository) FindUserWithIdentity(ctx context.Context, username string, t identity.Type) (*identity.User, *identity.Identity, error) {
	if username == "" {
		return nil, nil, identity.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, loginColumns+` WHERE u.username = $1 AND i.type = $2 ORDER BY i.created_at LIMIT 1`,
		username, string(t), string(identity.TypeEmailPassword))
	ident, u, err := scanLogin(row)
	return u, ident, err
}

func scanLogin(row *sql.Row) (*identity.Identity, *identity.User, error) {
	var (
		ident    identity.Identity
		typ      string
		lastUsed sql.NullTime
		u        identity.User
		groups   []byte
	)
	err := row.Scan(&ident.ID, &ident.UserID, &typ, &ident.Secret, &ident.Secret2,
		&ident.Extra, &lastUsed, &ident.CreatedAt, &ident.UpdatedAt,
		&u.ID, &u.Username, &u.Active, &u.CreatedAt, &u.UpdatedAt, &u.Email, &groups)
	if err != nil {
		return nil, nil, mapError(err)
	}
	ident.Type = identity.Type(typ)
	if lastUsed.Valid {
		ident.LastUsedAt = lastUsed.Time
	}
	if err := json.Unmarshal(groups, &u.Groups); err != nil {
		return nil, nil, mapError(err)
	}
	if len(u.Groups) == 0 {
		u.Groups = nil
	}
	return &ident, &u, nil
}

func (r *Repository) ListIdentities(ctx context.Context, userID uuid.UUID, types ...identity.Type) ([]identity.Identity, error) {
	var b strings.Builder
	b.WriteString(identityColumns)
	b.WriteString(` WHERE user_id = $1`)
	args := []any{userID}
	if len(types) > 0 {
		b.WriteString(` AND type IN (`)
		for i, t := range types {
			if i > 0 {
				b.WriteString(", ")
			}
			args = append(args, string(t))
			b.WriteString("$" + strconv.Itoa(len(args)))
		}
		b.WriteString(`)`)
	}
	b.WriteString(` ORDER BY created_at`)

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []identity.Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, *ident)
	}
	return out, mapError(rows.Err())
}

func (r *Repository) UpdateIdentitySecret(ctx context.Context, id uuid.UUID, secret string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE identities SET secret = $2, updated_at = $3 WHERE id = $1`, id, secret, at)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (r *Repository) UpdateIdentitySecret2(ctx context.Context, id uuid.UUID, secret2 string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE identities SET secret2 = $2, updated_at = $3 WHERE id = $1`, id, secret2, at)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

// SwapSecret2 is a compare-and-swap on secret2; a concurrent winner leaves
// zero affected rows for every other caller.
func (r *Repository) SwapSecret2(ctx context.Context, id uuid.UUID, oldSecret2, newSecret2 string, extra []byte, at time.Time) (bool, error) {
	query := `
		UPDATE identities SET secret2 = $3, extra = $4, updated_at = $5, last_used_at = $5
		WHERE id = $1 AND secret2 = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, oldSecret2, newSecret2, extra, at)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError(err)
	}
	return n == 1, nil
}

func (r *Repository) TouchIdentity(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE identities SET last_used_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (r *Repository) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (r *Repository) DeleteIdentities(ctx context.Context, userID uuid.UUID, t identity.Type) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE user_id = $1 AND type = $2`, userID, string(t))
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(err)
	}
	return int(n), nil
}
