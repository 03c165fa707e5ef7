package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mrz1836/go-sanitize"

	"github.com/mrz1836/walletlink/internal/fileutil"
)

// ErrEmptyPath indicates an empty file path was provided.
var ErrEmptyPath = fileutil.ErrEmptyPath

// File keeps each scope in its own JSON document under a directory.
// Every write rewrites the document atomically.
type File struct {
	mu  sync.Mutex
	dir string
}

// NewFile creates a file backend rooted at dir.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, ErrEmptyPath
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &File{dir: dir}, nil
}

// Scope returns the store for name.
func (f *File) Scope(name string) Store {
	return &fileStore{backend: f, scope: name}
}

// Close is a no-op.
func (f *File) Close() error {
	return nil
}

// path maps a scope name onto a file name. Scope names are wallet ids
// and may contain characters that are not safe in paths.
func (f *File) path(scope string) string {
	name := sanitize.PathName(scope)
	if name == "" {
		name = "default"
	}
	return filepath.Join(f.dir, name+".json")
}

func (f *File) read(scope string) (map[string]string, error) {
	// #nosec G304 -- path is built from the storage dir and a sanitized scope
	data, err := os.ReadFile(f.path(scope))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	kv := map[string]string{}
	if len(data) == 0 {
		return kv, nil
	}
	if err := json.Unmarshal(data, &kv); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.path(scope), err)
	}
	return kv, nil
}

func (f *File) write(scope string, kv map[string]string) error {
	data, err := json.MarshalIndent(kv, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(f.path(scope), data, 0o600)
}

type fileStore struct {
	backend *File
	scope   string
}

func (s *fileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	kv, err := s.backend.read(s.scope)
	if err != nil {
		return "", false, wrapErr(err, "get", s.scope, key)
	}
	v, ok := kv[key]
	return v, ok, nil
}

func (s *fileStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	kv, err := s.backend.read(s.scope)
	if err != nil {
		return wrapErr(err, "set", s.scope, key)
	}
	kv[key] = value
	return wrapErr(s.backend.write(s.scope, kv), "set", s.scope, key)
}

func (s *fileStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	kv, err := s.backend.read(s.scope)
	if err != nil {
		return wrapErr(err, "remove", s.scope, key)
	}
	if _, ok := kv[key]; !ok {
		return nil
	}
	delete(kv, key)
	return wrapErr(s.backend.write(s.scope, kv), "remove", s.scope, key)
}
