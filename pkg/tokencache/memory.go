package tokencache

import (
	"context"
	"sync"
)

// MemoryBackend keeps entries in a map. It lives only as long as the
// process and is mainly useful in tests.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]Entry
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]Entry)}
}

// Get returns the entry for key.
func (b *MemoryBackend) Get(_ context.Context, key string) (Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.data[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// Put stores entry under key.
func (b *MemoryBackend) Put(_ context.Context, key string, entry Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data[key] = entry
	return nil
}

// Len returns the number of stored entries.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}
