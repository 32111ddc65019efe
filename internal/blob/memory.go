package blob

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/okanat/filedock/internal/apperr"
)

// MemoryStore implements Store with an in-memory map for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Per-key fault injection for tests.
	PutErr    map[string]error
	DeleteErr map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, content []byte) error {
	if err := m.PutErr[key]; err != nil {
		return apperr.Wrap(apperr.CodeStorageWrite, "put object "+key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), content...)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.objects[key]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "version blob "+key+" not found")
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := m.DeleteErr[key]; err != nil {
		return apperr.Wrap(apperr.CodeStorageWrite, "delete object "+key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Exists reports whether a blob is currently stored. Test helper.
func (m *MemoryStore) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}
