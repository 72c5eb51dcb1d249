package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrCacheMiss indicates the requested key was not found.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates an entry failed the minimal shape check.
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrInvalidKey indicates a key that is not a single path element.
	ErrInvalidKey = errors.New("invalid cache key")
)

// Store is the key-value blob store holding Page, Detail and manifest
// entries. Implementations are used by one batch job at a time.
type Store interface {
	// Has reports whether an entry exists for key.
	Has(ctx context.Context, key string) (bool, error)

	// Get returns the entry for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the entry for key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Keys lists every key in the store in lexical order.
	Keys(ctx context.Context) ([]string, error)
}

// PageKeys returns the page numbers of all Page Entries in ascending order.
func PageKeys(ctx context.Context, s Store) ([]int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}
	pages := make([]int, 0, len(keys))
	for _, key := range keys {
		if n, ok := ParsePageKey(key); ok {
			pages = append(pages, n)
		}
	}
	sort.Ints(pages)
	return pages, nil
}

// MemoryStore keeps entries in a map. The zero value is not usable; call
// NewMemoryStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Has implements Store.
func (m *MemoryStore) Has(_ context.Context, key string) (bool, error) {
	if !ValidKey(key) {
		return false, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key]
	countOp(backendMemory, "has")
	return ok, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	countOp(backendMemory, "get")
	v, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), v...), nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	if !ValidKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append([]byte(nil), value...)
	countOp(backendMemory, "put")
	CacheWrittenBytes.WithLabelValues(backendMemory).Add(float64(len(value)))
	return nil
}

// Keys implements Store.
func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	countOp(backendMemory, "keys")
	return keys, nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
