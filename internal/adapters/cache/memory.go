package cache

import (
	"context"
	"sync"
	"time"

	"github.com/weftworks/weft/internal/ports"
)

type memoryEntry struct {
	value     []byte
	tags      []string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryShared is the process-local stand-in for the shared cache level,
// used when no Redis is configured. Same contract, one process.
type MemoryShared struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryShared() *MemoryShared {
	return &MemoryShared{
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryShared) Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	now := time.Now()
	if !exists || entry.expired(now) {
		delete(m.entries, key)
		return nil, 0, false, nil
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)

	var ttl time.Duration
	if !entry.expiresAt.IsZero() {
		ttl = entry.expiresAt.Sub(now)
	}
	return value, ttl, true, nil
}

func (m *MemoryShared) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: stored, tags: tags, expiresAt: expiresAt}
	return nil
}

func (m *MemoryShared) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryShared) DeleteByTag(ctx context.Context, tag string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		for _, t := range entry.tags {
			if t == tag {
				delete(m.entries, key)
				removed++
				break
			}
		}
	}
	return removed, nil
}

func (m *MemoryShared) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.entries[key]; exists && !entry.expired(time.Now()) {
		return false, nil
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = memoryEntry{value: []byte(value), expiresAt: expiresAt}
	return true, nil
}

func (m *MemoryShared) CheckAndDelete(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	if !exists || entry.expired(time.Now()) {
		delete(m.entries, key)
		return false, nil
	}
	if string(entry.value) != value {
		return false, nil
	}

	delete(m.entries, key)
	return true, nil
}

func (m *MemoryShared) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryShared) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

var _ ports.SharedCache = (*MemoryShared)(nil)
