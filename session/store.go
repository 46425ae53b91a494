package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned for missing or expired sessions.
var ErrNotFound = errors.New("session not found")

const minSlidingTTL = time.Second

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Config controls key namespace and expiry. Now defaults to time.Now.
type Config struct {
	Prefix           string
	IdleTimeout      time.Duration
	AbsoluteLifetime time.Duration
	Now              func() time.Time
}

// Store is a Redis-backed session store with sliding idle expiry capped by
// an absolute lifetime.
type Store struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(client redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "ss"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:  client,
		config: cfg,
		now:    now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.config.Prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.config.Prefix + "u:" + userID
}

// New builds an unsaved session for userID starting now.
func (s *Store) New(sessionID, userID, authenticator string, ipHash [32]byte) *Session {
	now := s.now()
	return &Session{
		ID:            sessionID,
		UserID:        userID,
		Authenticator: authenticator,
		IPHash:        ipHash,
		CreatedAt:     now.Unix(),
		ExpiresAt:     now.Add(s.config.AbsoluteLifetime).Unix(),
	}
}

// Save persists sess and indexes it under its user.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := s.ttlFor(sess, s.now())
	if ttl <= 0 {
		return ErrNotFound
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		pipe.Expire(ctx, s.userKey(sess.UserID), s.config.AbsoluteLifetime)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get loads a session and slides its idle TTL. Missing, expired and corrupt
// sessions return ErrNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil, ErrNotFound
	}
	sess.ID = sessionID

	ttl := s.ttlFor(sess, s.now())
	if ttl <= 0 {
		if err := s.deleteSessionAndIndex(ctx, sess.UserID, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// Delete removes a session. Deleting an unknown session is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var userID string
	if sess, err := Decode(data); err == nil {
		userID = sess.UserID
	}

	return s.deleteSessionAndIndex(ctx, userID, sessionID)
}

// DeleteAllForUser removes every indexed session of userID and returns how
// many existed.
//
// A session saved between the index read and the delete survives until its
// own TTL.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}

	var deleted *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, userKey, toAny(ids)...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(deleted.Val()), nil
}

// ActiveSessionIDs returns tracked session IDs for a user. Entries whose
// session already expired are pruned lazily by Get and Delete.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// ttlFor is the idle timeout, bounded by what remains of the absolute lifetime.
func (s *Store) ttlFor(sess *Session, now time.Time) time.Duration {
	remaining := time.Unix(sess.ExpiresAt, 0).Sub(now)
	if remaining <= 0 {
		return 0
	}
	ttl := s.config.IdleTimeout
	if ttl <= 0 || ttl > remaining {
		ttl = remaining
	}
	if ttl < minSlidingTTL {
		ttl = min(minSlidingTTL, remaining)
	}
	return ttl
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, userID, sessionID string) error {
	_, err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID), s.userKey(userID)}, sessionID).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
