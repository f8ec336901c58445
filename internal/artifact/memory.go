package artifact

import (
	"bytes"
	"context"
	"sync"
)

// MemoryBackend is an in-process content-addressed store for development and tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[Address][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[Address][]byte)}
}

// Put stores a copy of data under its content address.
func (m *MemoryBackend) Put(_ context.Context, data []byte) (Address, error) {
	addr := ContentAddress(data)
	m.mu.Lock()
	m.objects[addr] = bytes.Clone(data)
	m.mu.Unlock()
	return addr, nil
}

// Get returns a copy of the object at addr.
func (m *MemoryBackend) Get(_ context.Context, addr Address) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.objects[addr]
	m.mu.RUnlock()
	if !ok {
		return nil, NewNotFoundError("no object at " + string(addr))
	}
	return bytes.Clone(data), nil
}

// Len returns the number of stored objects.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
