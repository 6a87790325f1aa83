package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memoryStorage struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryStorage returns a process-local object store for development and
// tests.
func NewMemoryStorage() Storage {
	return &memoryStorage{objects: make(map[string]Object)}
}

func (m *memoryStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

func (m *memoryStorage) Download(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Object{Data: append([]byte(nil), obj.Data...), ContentType: obj.ContentType}, nil
}

func (m *memoryStorage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryStorage) DeleteMany(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}
