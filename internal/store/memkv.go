// ABOUTME: In-memory KV implementation for tests
// ABOUTME: Map-backed with the same semantics as the SQLite store

package store

import (
	"context"
	"strings"
	"sync"
)

// MemKV is an in-memory KV implementation for tests.
type MemKV struct {
	mu     sync.RWMutex
	values map[string][]byte

	// FailSet, when non-nil, is returned from every Set call.
	// Used to test persistence-failure paths.
	FailSet error
}

// NewMemKV creates an empty in-memory store.
func NewMemKV() *MemKV {
	return &MemKV{values: make(map[string][]byte)}
}

// Get returns the value for key, or ErrNotFound.
func (m *MemKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	// Copy so callers can't mutate stored state
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores value under key.
func (m *MemKV) Set(_ context.Context, key string, value []byte) error {
	if m.FailSet != nil {
		return m.FailSet
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	return nil
}

// Delete removes key.
func (m *MemKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Keys returns all keys with the given prefix.
func (m *MemKV) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close is a no-op for the in-memory store.
func (m *MemKV) Close() error {
	return nil
}

// Len returns the number of stored keys.
func (m *MemKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
