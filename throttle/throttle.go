package throttle

import (
	"context"
	"errors"
	"time"
)

// ErrBackendUnavailable wraps storage failures. It never means "throttled".
var ErrBackendUnavailable = errors.New("throttle backend unavailable")

// Record is the per-key attempt state.
type Record struct {
	Count         int
	LastAttempt   time.Time
	CooldownUntil time.Time
}

// Decision is the outcome of a Check or RecordFailure across one or more keys.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Count      int
}

// Backend stores Records. Increment must be atomic per key: concurrent
// failures for the same key are all counted.
type Backend interface {
	Get(ctx context.Context, key string, now time.Time) (Record, error)
	Increment(ctx context.Context, key string, now time.Time, p Policy) (Record, error)
	Reset(ctx context.Context, keys ...string) error
}

// Throttler applies a Policy to independently tracked keys.
type Throttler struct {
	backend Backend
	policy  Policy
	now     func() time.Time
}

// New returns a Throttler. now may be nil.
func New(backend Backend, policy Policy, now func() time.Time) (*Throttler, error) {
	if backend == nil {
		return nil, errors.New("throttle: backend is nil")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Throttler{backend: backend, policy: policy, now: now}, nil
}

func (t *Throttler) Policy() Policy {
	return t.policy
}

// Check reports whether every key is outside its cool-down. RetryAfter is
// the longest remaining wait across keys.
func (t *Throttler) Check(ctx context.Context, keys ...string) (Decision, error) {
	now := t.now()
	d := Decision{Allowed: true}
	for _, key := range keys {
		if key == "" {
			continue
		}
		rec, err := t.backend.Get(ctx, key, now)
		if err != nil {
			return Decision{}, err
		}
		d.merge(rec, now)
	}
	return d, nil
}

// RecordFailure increments every key and returns the resulting state.
func (t *Throttler) RecordFailure(ctx context.Context, keys ...string) (Decision, error) {
	now := t.now()
	d := Decision{Allowed: true}
	for _, key := range keys {
		if key == "" {
			continue
		}
		rec, err := t.backend.Increment(ctx, key, now, t.policy)
		if err != nil {
			return Decision{}, err
		}
		d.merge(rec, now)
	}
	return d, nil
}

// RecordSuccess clears keys entirely, including any pending cool-down.
func (t *Throttler) RecordSuccess(ctx context.Context, keys ...string) error {
	var live []string
	for _, key := range keys {
		if key != "" {
			live = append(live, key)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return t.backend.Reset(ctx, live...)
}

func (d *Decision) merge(rec Record, now time.Time) {
	d.Count = max(d.Count, rec.Count)
	if wait := rec.CooldownUntil.Sub(now); wait > 0 {
		d.Allowed = false
		d.RetryAfter = max(d.RetryAfter, wait)
	}
}

// LoginIdentifierKey throttles password attempts per submitted identifier.
func LoginIdentifierKey(identifier string) string {
	if identifier == "" {
		return ""
	}
	return "login:id:" + identifier
}

// LoginOriginKey throttles password attempts per client origin.
func LoginOriginKey(ip string) string {
	if ip == "" {
		return ""
	}
	return "login:ip:" + ip
}

// TokenOriginKey throttles failed bearer-token lookups per client origin.
func TokenOriginKey(ip string) string {
	if ip == "" {
		return ""
	}
	return "token:ip:" + ip
}
