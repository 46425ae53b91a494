package goShield

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goShield/identity"
)

var (
	// ErrAuthenticationFailed is the single external signal for every
	// credential failure. Match it with errors.Is.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrThrottled is matched by *ThrottledError.
	ErrThrottled = errors.New("too many authentication attempts")
	// ErrUnknownAuthenticator is matched by *UnknownAuthenticatorError.
	ErrUnknownAuthenticator = errors.New("unknown authenticator")
	// ErrStoreUnavailable wraps identity persistence failures.
	ErrStoreUnavailable = identity.ErrStoreUnavailable
	// ErrAlreadyRegistered is returned by self-service registration when any
	// unique field collides. It does not say which one.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrPasswordPolicy is returned when a new password is rejected.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrUserNotActive is returned by admin operations that require an active user.
	ErrUserNotActive = errors.New("user not active")
	// ErrEngineNotInitialized is returned by methods called on a nil Engine.
	ErrEngineNotInitialized = errors.New("engine not initialized")
)

// Reason is an internal failure code. It appears in audit events and logs,
// never in error messages returned to clients.
type Reason string

const (
	ReasonUserNotFound       Reason = "user_not_found"
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonUserNotActive      Reason = "user_not_active"
	ReasonMissingCredentials Reason = "missing_credentials"
	ReasonTokenInvalid       Reason = "token_invalid"
	ReasonTokenExpired       Reason = "token_expired"
	ReasonTokenRevoked       Reason = "token_revoked"
	ReasonRememberReuse      Reason = "remember_reuse"
	ReasonThrottled          Reason = "throttled"
)

// AuthenticationError is a credential failure. Its message is identical for
// every reason and the reason itself is unexported, so callers cannot leak
// which check failed. Audit events and logs carry it instead.
type AuthenticationError struct {
	reason Reason
}

func (e *AuthenticationError) Error() string {
	return ErrAuthenticationFailed.Error()
}

func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthenticationFailed
}

// ThrottledError reports that the caller must wait RetryAfter before trying
// again.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrThrottled, e.RetryAfter.Round(time.Second))
}

func (e *ThrottledError) Is(target error) bool {
	return target == ErrThrottled
}

// UnknownAuthenticatorError names an authenticator with no registered factory.
type UnknownAuthenticatorError struct {
	Name string
}

func (e *UnknownAuthenticatorError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownAuthenticator, e.Name)
}

func (e *UnknownAuthenticatorError) Is(target error) bool {
	return target == ErrUnknownAuthenticator
}

// reasonOf returns the internal reason of a credential failure, or "" for
// any other error.
func reasonOf(err error) Reason {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return authErr.reason
	}
	if errors.Is(err, ErrThrottled) {
		return ReasonThrottled
	}
	return ""
}

func failure(reason Reason) error {
	return &AuthenticationError{reason: reason}
}
