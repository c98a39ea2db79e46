package state

import (
	"sync"
)

// Backend is the raw byte-level storage a Store runs on. A namespace scopes
// one pane's cells; dropping the namespace drops the whole pane.
type Backend interface {
	Get(namespace string, key string) ([]byte, error)
	Put(namespace string, key string, value []byte) error
	Delete(namespace string, key string) error
	DeleteNamespace(namespace string) error
	Close() error
}

type memory struct {
	mutex      sync.RWMutex
	namespaces map[string]map[string][]byte
}

func (m *memory) Get(namespace string, key string) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if cells, ok := m.namespaces[namespace]; ok {
		return cells[key], nil
	}
	return nil, nil
}

func (m *memory) Put(namespace string, key string, value []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	cells, ok := m.namespaces[namespace]
	if !ok {
		cells = map[string][]byte{}
		m.namespaces[namespace] = cells
	}
	cells[key] = value
	return nil
}

func (m *memory) Delete(namespace string, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if cells, ok := m.namespaces[namespace]; ok {
		delete(cells, key)
	}
	return nil
}

func (m *memory) DeleteNamespace(namespace string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.namespaces, namespace)
	return nil
}

func (m *memory) Close() error { return nil }

func NewMemoryBackend() Backend {
	return &memory{namespaces: map[string]map[string][]byte{}}
}
