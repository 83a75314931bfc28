package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores serialized query results by key
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// DeletePrefix removes key and every key nested under it
	DeletePrefix(ctx context.Context, key string) (int, error)
}

// Key is a hierarchical query key such as {"orders", "42"}
type Key []string

func (k Key) String() string {
	return strings.Join(k, ":")
}

// covers reports whether the cache key s equals k or is nested under it
func covers(prefix, s string) bool {
	return s == prefix || strings.HasPrefix(s, prefix+":")
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache keeps query results in process
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if m.ttl > 0 && m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryCache) DeletePrefix(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k := range m.entries {
		if covers(key, k) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}
