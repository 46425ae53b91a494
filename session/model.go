package session

// Session is the server-side marker binding a session id to an
// authenticated user.
//
// CreatedAt and ExpiresAt are unix seconds. ExpiresAt is the absolute
// lifetime cap; idle expiry is carried by the Redis TTL.
type Session struct {
	ID            string
	UserID        string
	Authenticator string
	IPHash        [32]byte

	CreatedAt int64
	ExpiresAt int64
}
