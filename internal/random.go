package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// SessionID is a 128-bit random identifier used for server-side sessions and
// token selectors.
type SessionID [16]byte

// Validator is the secret half of a split token. Only its hash is persisted.
type Validator [validatorSize]byte

const (
	validatorSize  = 32
	splitTokenSize = 16 + validatorSize
)

var (
	errSessionIDSize  = errors.New("invalid session id size")
	errSplitTokenSize = errors.New("invalid split token size")
)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) Bytes() []byte {
	return s[:]
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errSessionIDSize
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewSelector returns a fresh public token selector.
func NewSelector() (string, error) {
	sid, err := NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}

func NewValidator() (Validator, error) {
	var v Validator
	_, err := rand.Read(v[:])
	return v, err
}

// String is the form handed to the token hasher.
func (v Validator) String() string {
	return base64.RawURLEncoding.EncodeToString(v[:])
}

// EncodeSplitToken packs selector||validator into one opaque base64url value.
func EncodeSplitToken(selector string, v Validator) (string, error) {
	sid, err := ParseSessionID(selector)
	if err != nil {
		return "", err
	}

	var raw [splitTokenSize]byte
	copy(raw[:len(sid)], sid[:])
	copy(raw[len(sid):], v[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeSplitToken(token string) (string, Validator, error) {
	var v Validator

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", v, err
	}
	if len(raw) != splitTokenSize {
		return "", v, errSplitTokenSize
	}

	var sid SessionID
	copy(sid[:], raw[:len(sid)])
	copy(v[:], raw[len(sid):])

	return sid.String(), v, nil
}

// NewSplitToken generates a selector and validator and returns them together
// with their encoded token form.
func NewSplitToken() (selector string, v Validator, token string, err error) {
	selector, err = NewSelector()
	if err != nil {
		return "", v, "", err
	}
	v, err = NewValidator()
	if err != nil {
		return "", v, "", err
	}
	token, err = EncodeSplitToken(selector, v)
	return selector, v, token, err
}
