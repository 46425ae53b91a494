package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T, cfg Config) (*Store, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, cfg), mr, rdb
}

func defaultTestConfig() Config {
	return Config{
		Prefix:           "as",
		IdleTimeout:      30 * time.Minute,
		AbsoluteLifetime: 24 * time.Hour,
	}
}

func TestSaveGetDelete(t *testing.T) {
	store, _, rdb := newSessionStoreTest(t, defaultTestConfig())
	ctx := context.Background()

	sess := store.New("sid-1", "u-1", "session", [32]byte{3})
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ID != "sid-1" || got.UserID != "u-1" || got.Authenticator != "session" || got.IPHash != sess.IPHash {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	members, err := rdb.SMembers(ctx, store.userKey("u-1")).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected no user index members, got %v", members)
	}
}

func TestGetSlidesIdleTTL(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t, defaultTestConfig())
	ctx := context.Background()

	if err := store.Save(ctx, store.New("sid-1", "u-1", "session", [32]byte{})); err != nil {
		t.Fatalf("save session: %v", err)
	}

	mr.FastForward(20 * time.Minute)
	if ttl := mr.TTL(store.key("sid-1")); ttl != 10*time.Minute {
		t.Fatalf("expected 10m ttl before read, got %v", ttl)
	}

	if _, err := store.Get(ctx, "sid-1"); err != nil {
		t.Fatalf("get session: %v", err)
	}
	if ttl := mr.TTL(store.key("sid-1")); ttl != 30*time.Minute {
		t.Fatalf("expected idle ttl refreshed to 30m, got %v", ttl)
	}

	mr.FastForward(31 * time.Minute)
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected idle expiry, got %v", err)
	}
}

func TestAbsoluteLifetimeCapsSliding(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.AbsoluteLifetime = time.Hour
	store, mr, _ := newSessionStoreTest(t, cfg)
	ctx := context.Background()

	base := time.Unix(1_767_225_600, 0)
	store.now = func() time.Time { return base }
	if err := store.Save(ctx, store.New("sid-1", "u-1", "session", [32]byte{})); err != nil {
		t.Fatalf("save session: %v", err)
	}

	store.now = func() time.Time { return base.Add(50 * time.Minute) }
	if _, err := store.Get(ctx, "sid-1"); err != nil {
		t.Fatalf("get session: %v", err)
	}
	if ttl := mr.TTL(store.key("sid-1")); ttl != 10*time.Minute {
		t.Fatalf("expected ttl capped at remaining lifetime, got %v", ttl)
	}

	store.now = func() time.Time { return base.Add(61 * time.Minute) }
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected absolute expiry, got %v", err)
	}
	if mr.Exists(store.key("sid-1")) {
		t.Fatal("expired session must be deleted")
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t, defaultTestConfig())
	ctx := context.Background()

	for _, sid := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, store.New(sid, "u-1", "session", [32]byte{})); err != nil {
			t.Fatalf("save %s: %v", sid, err)
		}
	}
	if err := store.Save(ctx, store.New("other", "u-2", "session", [32]byte{})); err != nil {
		t.Fatalf("save other: %v", err)
	}

	n, err := store.DeleteAllForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 sessions deleted, got %d", n)
	}
	for _, sid := range []string{"a", "b", "c"} {
		if mr.Exists(store.key(sid)) {
			t.Fatalf("session %s survived", sid)
		}
	}
	if _, err := store.Get(ctx, "other"); err != nil {
		t.Fatalf("other user's session removed: %v", err)
	}

	n, err = store.DeleteAllForUser(ctx, "u-1")
	if err != nil || n != 0 {
		t.Fatalf("expected idempotent delete, got n=%d err=%v", n, err)
	}
}

func TestCorruptBlobIsNotFound(t *testing.T) {
	store, _, rdb := newSessionStoreTest(t, defaultTestConfig())
	ctx := context.Background()

	if err := rdb.Set(ctx, store.key("sid-corrupt"), []byte("bad"), time.Hour).Err(); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}
	if _, err := store.Get(ctx, "sid-corrupt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	store := NewStore(rdb, defaultTestConfig())
	mr.Close()

	if _, err := store.Get(context.Background(), "sid"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestEncodeDecodeRejectsBadInput(t *testing.T) {
	if _, err := Decode([]byte{99}); err == nil {
		t.Fatal("expected unsupported schema version error")
	}

	sess := &Session{UserID: string(make([]byte, 256))}
	if _, err := Encode(sess); err == nil {
		t.Fatal("expected field length error")
	}

	ok := &Session{UserID: "u", Authenticator: "session", CreatedAt: 1, ExpiresAt: 2}
	data, err := Encode(ok)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(append(data, 0)); err == nil {
		t.Fatal("expected trailing bytes error")
	}
	if _, err := Decode(data[:len(data)-1]); err == nil {
		t.Fatal("expected truncated input error")
	}
}

// FuzzSessionDecode exercises the binary session decoder with arbitrary inputs.
func FuzzSessionDecode(f *testing.F) {
	encoded, err := Encode(&Session{UserID: "user1", Authenticator: "session", CreatedAt: 1700000000, ExpiresAt: 1700003600})
	if err == nil {
		f.Add(encoded)
	}
	f.Add([]byte{})
	f.Add([]byte{CurrentSchemaVersion, 200})

	f.Fuzz(func(t *testing.T, data []byte) {
		sess, err := Decode(data)
		if err != nil {
			return
		}
		if _, err := Encode(sess); err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
	})
}
