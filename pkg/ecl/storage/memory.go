package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryBackend implements Backend using in-memory storage.
// This is the default backend and provides fast access with no persistence.
// All data is lost when the process exits.
type MemoryBackend struct {
	// entries maps bucket to key to entry.
	entries map[string]map[string]memoryEntry

	// mu protects access to entries.
	mu sync.RWMutex

	// size is the total number of entries across buckets.
	size int

	// maxEntries is the maximum number of entries before eviction.
	maxEntries int

	closed bool
}

type memoryEntry struct {
	value   []byte
	updated time.Time
}

// MemoryBackendConfig configures the memory backend.
type MemoryBackendConfig struct {
	// MaxEntries is the maximum number of entries to store.
	// The least recently written entry is evicted when this limit is reached.
	// Default: 100,000
	MaxEntries int
}

// NewMemoryBackend creates a new in-memory storage backend with default settings.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithConfig(MemoryBackendConfig{})
}

// NewMemoryBackendWithConfig creates a new in-memory backend with custom configuration.
func NewMemoryBackendWithConfig(cfg MemoryBackendConfig) *MemoryBackend {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100000
	}
	return &MemoryBackend{
		entries:    make(map[string]map[string]memoryEntry),
		maxEntries: cfg.MaxEntries,
	}
}

// Get returns the value stored under key.
func (m *MemoryBackend) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := validate(bucket, key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	e, ok := m.entries[bucket][key]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, e.value...), nil
}

// Put stores value under key.
func (m *MemoryBackend) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := validate(bucket, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	b := m.entries[bucket]
	if b == nil {
		b = make(map[string]memoryEntry)
		m.entries[bucket] = b
	}
	if _, exists := b[key]; !exists {
		if m.size >= m.maxEntries {
			m.evictOldestLocked()
		}
		m.size++
	}
	b[key] = memoryEntry{value: append([]byte{}, value...), updated: time.Now()}
	return nil
}

// Delete removes key.
func (m *MemoryBackend) Delete(ctx context.Context, bucket, key string) (bool, error) {
	if err := validate(bucket, key); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if _, ok := m.entries[bucket][key]; !ok {
		return false, nil
	}
	delete(m.entries[bucket], key)
	m.size--
	return true, nil
}

// List returns keys with prefix in lexical order.
func (m *MemoryBackend) List(ctx context.Context, bucket, prefix string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var keys []string
	for k := range m.entries[bucket] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// Count returns the number of keys with prefix.
func (m *MemoryBackend) Count(ctx context.Context, bucket, prefix string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	var n uint64
	for k := range m.entries[bucket] {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n, nil
}

// Cleanup removes entries not written since olderThan.
func (m *MemoryBackend) Cleanup(ctx context.Context, bucket string, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	deleted := 0
	for key, e := range m.entries[bucket] {
		if e.updated.Before(olderThan) {
			delete(m.entries[bucket], key)
			deleted++
		}
	}
	m.size -= deleted
	return deleted, nil
}

// Close releases the stored data.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	m.size = 0
	return nil
}

// Size returns the current number of stored entries.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// evictOldestLocked evicts the least recently written entry.
// Caller must hold write lock.
func (m *MemoryBackend) evictOldestLocked() {
	var (
		oldestBucket, oldestKey string
		oldestTime              time.Time
		found                   bool
	)
	for bucket, entries := range m.entries {
		for key, e := range entries {
			if !found || e.updated.Before(oldestTime) {
				oldestBucket, oldestKey, oldestTime = bucket, key, e.updated
				found = true
			}
		}
	}
	if found {
		delete(m.entries[oldestBucket], oldestKey)
		m.size--
	}
}
