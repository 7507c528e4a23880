// Package querycache is the bounded-staleness read-through cache for logical
// queries (registry searches, entity detail views). Keys are namespaced
// strings such as "fca:firm:12345"; values are the marshaled response bodies.
// Writers invalidate affected entries synchronously with the mutation.
package querycache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cache is the storage contract. Implementations must treat an expired entry
// exactly like a missing one.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
	// InvalidatePrefix removes every entry whose key starts with prefix,
	// e.g. all cached case list pages regardless of query string.
	InvalidatePrefix(ctx context.Context, prefix string) error
	Health(ctx context.Context) error
}

type entry struct {
	value     []byte
	fetchedAt time.Time
	ttl       time.Duration
}

func (e entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.fetchedAt) > e.ttl
}

// Memory is the in-process Cache used in development and tests. Expired
// entries are dropped lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory constructs an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, fetchedAt: m.now(), ttl: ttl}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *Memory) InvalidatePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *Memory) Health(context.Context) error { return nil }

// SetClock overrides the time source for tests.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }
