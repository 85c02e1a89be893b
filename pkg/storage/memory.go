package storage

import (
	"context"
	"sync"
)

// MemoryDB is an in-memory implementation of ServiceStorage, intended for
// tests and ephemeral wallets.
type MemoryDB struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
	open       bool
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		namespaces: make(map[string]map[string][]byte),
		open:       true,
	}
}

func (m *MemoryDB) Type() Type {
	return Memory
}

func (m *MemoryDB) URI() string {
	return "memory"
}

func (m *MemoryDB) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

func (m *MemoryDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespaces = make(map[string]map[string][]byte)
	m.open = false
	return nil
}

func (m *MemoryDB) Write(_ context.Context, namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.namespaces[namespace] = ns
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	ns[key] = stored
	return nil
}

func (m *MemoryDB) Read(_ context.Context, namespace, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		return nil, nil
	}
	value, ok := ns[key]
	if !ok {
		return nil, nil
	}
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (m *MemoryDB) Exists(ctx context.Context, namespace, key string) (bool, error) {
	value, err := m.Read(ctx, namespace, key)
	if err != nil {
		return false, err
	}
	return value != nil, nil
}

func (m *MemoryDB) ReadAll(_ context.Context, namespace string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]byte)
	for key, value := range m.namespaces[namespace] {
		stored := make([]byte, len(value))
		copy(stored, value)
		result[key] = stored
	}
	return result, nil
}

func (m *MemoryDB) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		return nil
	}
	delete(ns, key)
	return nil
}

func (m *MemoryDB) DeleteNamespace(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, namespace)
	return nil
}
