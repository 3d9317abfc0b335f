package repository

import (
	"context"
	"sync"
)

// MemoryBackend keeps the blob in process memory. Used by tests and by the
// "memory" store setting.
type MemoryBackend struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemoryBackend(initial []byte) *MemoryBackend {
	b := &MemoryBackend{}
	if initial != nil {
		b.data = append([]byte(nil), initial...)
	}
	return b
}

func (b *MemoryBackend) Read(_ context.Context) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil, nil
	}
	return append([]byte(nil), b.data...), nil
}

func (b *MemoryBackend) Write(_ context.Context, data []byte) error {
	buf := append([]byte(nil), data...)
	b.mu.Lock()
	b.data = buf
	b.mu.Unlock()
	return nil
}
