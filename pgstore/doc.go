// Package pgstore implements identity.Repository on PostgreSQL.
//
// It talks to the database through database/sql with the pgx stdlib driver
// and ships its schema as embedded goose migrations:
//
//	db, err := pgstore.Open(ctx, dsn)
//	if err != nil { ... }
//	if err := pgstore.Migrate(ctx, db); err != nil { ... }
//	repo := pgstore.New(db)
//
// Uniqueness of (type, secret) and of username is enforced by table
// constraints; violations surface as identity.ErrDuplicateIdentity and
// identity.ErrDuplicateUsername. Every other database failure wraps
// identity.ErrStoreUnavailable.
package pgstore
