package search

import (
	"context"
	"sync"

	"github.com/leadharvest/leadharvest/internal/db"
)

// memStore implements the consumer interface for tests.
type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	hashes map[string]map[string][]byte

	getErr error
	setErr error

	// onHGet, when set, runs outside the lock before each HGet. Lets a
	// test hold two readers at the same point before either writes.
	onHGet func(key, field string)
}

func newMemStore() *memStore {
	return &memStore{
		data:   make(map[string][]byte),
		hashes: make(map[string]map[string][]byte),
	}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.hashes, key)
	return nil
}

func (m *memStore) HGet(_ context.Context, key, field string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.onHGet != nil {
		m.onHGet(key, field)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.hashes[key][field]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) HSet(_ context.Context, key, field string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes[key] == nil {
		m.hashes[key] = make(map[string][]byte)
	}
	m.hashes[key][field] = value
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = v
	}
	return out, nil
}
