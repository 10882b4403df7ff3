package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MemStore is an in-memory Store. It backs tests and is the fallback when
// durable storage cannot be opened.
type MemStore struct {
	mu   sync.Mutex
	data map[string]string

	// PutError, if set, is returned by every Put.
	PutError error
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]string)}
}

// GetInt returns the integer stored under key.
func (m *MemStore) GetInt(_ context.Context, key string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("key %q: %w", key, err)
	}
	return v, true, nil
}

// GetString returns the string stored under key.
func (m *MemStore) GetString(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[key]
	return s, ok, nil
}

// PutInt stores an integer under key.
func (m *MemStore) PutInt(_ context.Context, key string, value int) error {
	return m.put(key, strconv.Itoa(value))
}

// PutString stores a string under key.
func (m *MemStore) PutString(_ context.Context, key string, value string) error {
	return m.put(key, value)
}

func (m *MemStore) put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutError != nil {
		return m.PutError
	}
	m.data[key] = value
	return nil
}

// Raw returns the stored text for key. Used by tests.
func (m *MemStore) Raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[key]
	return s, ok
}
