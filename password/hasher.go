package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hasher is the secret hashing contract shared by every credential type.
// Verify must not distinguish a malformed stored value from a mismatch.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, stored string) bool
	NeedsRehash(stored string) bool
}

var (
	_ Hasher = (*Argon2)(nil)
	_ Hasher = TokenHasher{}
)

// TokenHasher hashes high-entropy machine secrets (token validators) with
// SHA-256. It is unsalted and deterministic, so it must only be used for
// values generated from crypto/rand with at least 128 bits of entropy.
type TokenHasher struct{}

// Hash returns the lowercase hex SHA-256 digest of plaintext.
func (TokenHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:]), nil
}

// Verify compares digests in constant time.
func (TokenHasher) Verify(plaintext, stored string) bool {
	want, err := hex.DecodeString(stored)
	if err != nil || len(want) != sha256.Size {
		return false
	}
	got := sha256.Sum256([]byte(plaintext))
	return subtle.ConstantTimeCompare(got[:], want) == 1
}

// NeedsRehash is always false; SHA-256 digests carry no cost parameters.
func (TokenHasher) NeedsRehash(string) bool {
	return false
}
