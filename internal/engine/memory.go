package engine

import (
	"bytes"
	"sync"

	"garnet/internal/db"
)

// Memory is a map-backed Engine with no persistence. It exists as the
// simplest possible implementation of the contract, mainly to cross-check
// the real store in tests.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ Engine = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[string(key)] = bytes.Clone(value)
	return nil
}

func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.items[string(key)]
	if !ok {
		return nil, db.ErrNotFound
	}
	return bytes.Clone(value), nil
}

func (m *Memory) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, string(key))
	return nil
}

func (m *Memory) Close() error {
	return nil
}
