package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process object store used by tests and local runs.
// It honors the same port contract as the MinIO adapter, including
// missing-key reporting.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	meta    map[string]map[string]string
}

// ErrNotExist is returned by Get for keys that were never put.
type ErrNotExist struct{ Key string }

func (e *ErrNotExist) Error() string { return fmt.Sprintf("object %q does not exist", e.Key) }

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		meta:    make(map[string]map[string]string),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, &ErrNotExist{Key: key}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(data))
	copy(v, data)
	m.objects[key] = v
	if metadata != nil {
		md := make(map[string]string, len(metadata))
		for k, val := range metadata {
			md[k] = val
		}
		m.meta[key] = md
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) PresignGet(_ context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	return fmt.Sprintf("memory://local/%s?ttl=%d", key, int(ttl/time.Second)),
		time.Now().Add(ttl), nil
}

// Metadata returns the user metadata stored with a key, for test assertions.
func (m *Memory) Metadata(key string) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta[key]
}
