// storage.go - Key/value substrate for the operation pools.
//
// Pools are stored as whole JSON documents under fixed keys. A transition that
// moves an operation between pools rewrites both documents, so Apply must commit
// all of its writes or none of them.

package storage

import (
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: closed")

// KV is a durable key/value store with atomic multi-key writes.
type KV interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(key string) (value []byte, ok bool, err error)
	// Apply writes every entry atomically.
	Apply(writes map[string][]byte) error
	Close() error
}

// Memory is an in-process KV used by tests and the demo.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Apply(writes map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for k, v := range writes {
		cp := make([]byte, len(v))
		copy(cp, v)
		m.data[k] = cp
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
