// Package storage provides the namespaced key-value stores that hold
// connection session state between runs.
//
// A Backend owns one physical storage area (a directory, a LevelDB database,
// a redis keyspace, the OS keyring or process memory) and hands out Stores
// scoped by a caller-chosen name. Writes are last-writer-wins per key.
package storage

import (
	"context"
	"strings"

	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// Store is a scoped string key-value store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Backend hands out Stores scoped by name over one storage area.
type Backend interface {
	Scope(name string) Store
	Close() error
}

// ScopeFunc creates the store for a scope.
type ScopeFunc func(scope string) Store

// Backend names accepted by Open.
const (
	BackendMemory  = "memory"
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
	BackendRedis   = "redis"
	BackendKeyring = "keyring"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string
	Redis   RedisOptions
}

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string
	DB       int
	Password string
	Prefix   string
}

// Open creates the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile, "":
		return NewFile(opts.Path)
	case BackendLevelDB:
		return OpenLevelDB(opts.Path)
	case BackendRedis:
		return OpenRedis(ctx, opts.Redis)
	case BackendKeyring:
		return NewKeyring(nil), nil
	default:
		return nil, walleterr.Template(walleterr.ErrStorageBackend, map[string]string{"backend": opts.Backend})
	}
}

// wrapErr marks err as a storage failure for the given operation and key.
func wrapErr(err error, op, scope, key string) error {
	if err == nil {
		return nil
	}
	return walleterr.WithDetails(walleterr.WithCause(walleterr.ErrStorage, err), map[string]string{
		"op":    op,
		"scope": scope,
		"key":   key,
	})
}
