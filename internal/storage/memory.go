package storage

import (
	"context"
	"sync"
)

// Memory is an in-process backend. Stores obtained from the same Memory
// share data per scope name.
type Memory struct {
	mu     sync.RWMutex
	scopes map[string]map[string]string
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{scopes: make(map[string]map[string]string)}
}

// Scope returns the store for name.
func (m *Memory) Scope(name string) Store {
	return &memoryStore{backend: m, scope: name}
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// Snapshot returns a copy of every key in scope.
func (m *Memory) Snapshot(scope string) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.scopes[scope]))
	for k, v := range m.scopes[scope] {
		out[k] = v
	}
	return out
}

type memoryStore struct {
	backend *Memory
	scope   string
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()

	v, ok := s.backend.scopes[s.scope][key]
	return v, ok, nil
}

func (s *memoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	kv, ok := s.backend.scopes[s.scope]
	if !ok {
		kv = make(map[string]string)
		s.backend.scopes[s.scope] = kv
	}
	kv[key] = value
	return nil
}

func (s *memoryStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	delete(s.backend.scopes[s.scope], key)
	return nil
}
