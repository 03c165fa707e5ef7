package storage

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelDB keeps every scope in one database, keys prefixed by scope.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the database under dir.
func OpenLevelDB(dir string) (*LevelDB, error) {
	if dir == "" {
		return nil, ErrEmptyPath
	}
	db, err := leveldb.OpenFile(filepath.Join(dir, "leveldb"), nil)
	if err != nil {
		return nil, wrapErr(err, "open", "", dir)
	}
	return &LevelDB{db: db}, nil
}

// NewLevelDBInMemory opens a database backed by memory.
func NewLevelDBInMemory() (*LevelDB, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Scope returns the store for name.
func (l *LevelDB) Scope(name string) Store {
	return &levelStore{db: l.db, scope: name}
}

// Close closes the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

type levelStore struct {
	db    *leveldb.DB
	scope string
}

func (s *levelStore) key(key string) []byte {
	return []byte(s.scope + "/" + key)
}

func (s *levelStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	v, err := s.db.Get(s.key(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(err, "get", s.scope, key)
	}
	return string(v), true, nil
}

func (s *levelStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapErr(s.db.Put(s.key(key), []byte(value), nil), "set", s.scope, key)
}

func (s *levelStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapErr(s.db.Delete(s.key(key), nil), "remove", s.scope, key)
}
