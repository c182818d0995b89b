package cache

import (
	"strings"
	"sync"
)

// Provider is a durable key-value store holding serialized HTTP responses.
// Entries have no expiry; they live until their generation is evicted.
//
// Implementations must be thread-safe!
type Provider interface {
	// Get returns the stored bytes for the given key, if present.
	Get(key string) ([]byte, bool, error)
	// Put stores the given bytes under the given key, overwriting any
	// previous value.
	Put(key string, value []byte) error
	// Delete removes the entry for the given key, if present.
	Delete(key string) error
	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(prefix string) error
	// Keys calls the given callback for each key starting with prefix.
	Keys(prefix string, cb func(key string)) error
}

// MemProvider is a non-durable in-memory provider, used in tests and when
// running with `-db memory`.
type MemProvider struct {
	mutex *sync.RWMutex
	db    map[string][]byte
}

func NewMemProvider() MemProvider {
	return MemProvider{
		mutex: &sync.RWMutex{},
		db:    make(map[string][]byte),
	}
}

func (m MemProvider) Get(key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	value, ok := m.db[key]
	return value, ok, nil
}

func (m MemProvider) Put(key string, value []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = value
	return nil
}

func (m MemProvider) Delete(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
	return nil
}

func (m MemProvider) DeletePrefix(prefix string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for key := range m.db {
		if strings.HasPrefix(key, prefix) {
			delete(m.db, key)
		}
	}
	return nil
}

func (m MemProvider) Keys(prefix string, cb func(string)) error {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db))
	for key := range m.db {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mutex.RUnlock()
	for _, key := range keys {
		cb(key)
	}
	return nil
}
