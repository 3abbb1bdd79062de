// ABOUTME: In-memory medium for tests and ephemeral servers
// ABOUTME: Keeps serialized bytes so it shares encode/decode behavior with durable media

package store

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is returned by a MemoryMedium after FailWrites is set.
var ErrInjected = errors.New("injected write failure")

// MemoryMedium holds the document bytes in process memory.
type MemoryMedium struct {
	mu         sync.Mutex
	data       []byte
	failWrites bool
}

// NewMemoryMedium returns an empty medium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{}
}

// NewMemoryStore returns a DocumentStore over a fresh MemoryMedium.
func NewMemoryStore(opts ...Option) *DocumentStore {
	return New(NewMemoryMedium(), opts...)
}

// Read implements Medium.
func (m *MemoryMedium) Read(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

// Write implements Medium.
func (m *MemoryMedium) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return ErrInjected
	}
	m.data = make([]byte, len(data))
	copy(m.data, data)
	return nil
}

// SetRaw replaces the stored bytes directly, bypassing encoding.
func (m *MemoryMedium) SetRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
}

// FailWrites makes subsequent writes fail (or succeed again).
func (m *MemoryMedium) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// Close implements Medium.
func (m *MemoryMedium) Close() error {
	return nil
}

func (m *MemoryMedium) String() string {
	return "memory"
}
