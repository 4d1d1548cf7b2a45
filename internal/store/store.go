// Package store persists whole collections as single JSON blobs under named slots.
package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"simpletasks/internal/utils"
)

// Slots is a device-local key-value store holding one blob per key.
type Slots interface {
	// Get returns the blob stored under key. ok is false when the key is unset.
	Get(key string) (value []byte, ok bool, err error)
	// Put replaces the blob stored under key in a single write.
	Put(key string, value []byte) error
	Close() error
}

// Load returns the collection stored under key. Absent keys, read failures
// and data that does not decode as a JSON array of T all yield an empty
// collection; the latter two are logged but never returned.
func Load[T any](slots Slots, key string) []T {
	data, ok, err := slots.Get(key)
	if err != nil {
		utils.Warnf("store: reading %q failed, starting empty: %v", key, err)
		return []T{}
	}
	if !ok {
		return []T{}
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		utils.Warnf("store: %q does not hold a valid collection, starting empty: %v", key, err)
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}

// Save serializes the full collection and overwrites the blob under key.
func Save[T any](slots Slots, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := slots.Put(key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Memory is an in-process Slots implementation.
type Memory struct {
	mu    sync.RWMutex
	slots map[string][]byte
	puts  int
}

// NewMemory returns an empty in-memory slot store.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string][]byte)}
}

// Get returns a copy of the blob under key.
func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.slots[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put stores a copy of value under key.
func (m *Memory) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = append([]byte(nil), value...)
	m.puts++
	return nil
}

// Puts reports how many writes the store has accepted.
func (m *Memory) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
