package throttle

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// MemoryBackend is a single-process Backend. Expired records are dropped
// lazily on access.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

func (m *MemoryBackend) Get(ctx context.Context, key string, now time.Time) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return Record{}, nil
	}
	if !now.Before(e.expiresAt) {
		delete(m.entries, key)
		return Record{}, nil
	}
	return e.rec, nil
}

func (m *MemoryBackend) Increment(ctx context.Context, key string, now time.Time, p Policy) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		e = memoryEntry{}
	}

	e.rec.Count++
	e.rec.LastAttempt = now
	if cd := p.Cooldown(e.rec.Count); cd > 0 {
		e.rec.CooldownUntil = now.Add(cd)
	}
	e.expiresAt = now.Add(p.ttl(now, e.rec.CooldownUntil))
	m.entries[key] = e

	return e.rec, nil
}

func (m *MemoryBackend) Reset(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}
