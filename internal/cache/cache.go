// Package cache provides a keyed, TTL-expiring store for rendered responses.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a keyed byte store with per-entry expiry. Implementations are
// best-effort: a failed write is dropped silently and a failed read is a
// miss, so callers never special-case the backing store.
type Store interface {
	// Get returns the value stored under key, or false when the key is
	// unknown or its entry has expired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value under key for ttl. Non-positive ttls are discarded.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Name identifies the backend for logs and health reporting.
	Name() string
}

// NullStore discards writes and always misses. It stands in when no writable
// cache location exists.
type NullStore struct{}

func (NullStore) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (NullStore) Set(context.Context, string, []byte, time.Duration) {}

func (NullStore) Name() string { return "null" }

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps entries in process memory. Used in tests and available
// as a deterministic substitute for the filesystem store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore constructs an empty in-memory store. A nil now falls back
// to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.After(m.now()) {
		delete(m.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: m.now().Add(ttl),
	}
}

func (m *MemoryStore) Name() string { return "memory" }
