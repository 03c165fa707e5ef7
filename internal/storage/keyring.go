package storage

import (
	"context"
	"errors"

	"github.com/zalando/go-keyring"
)

// KeyringServicePrefix prefixes the keyring service name of every scope.
const KeyringServicePrefix = "walletlink"

// KeyringProvider abstracts OS keyring operations for testability.
type KeyringProvider interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// SystemKeyring uses the OS keyring through go-keyring.
type SystemKeyring struct{}

// Set stores a secret in the keyring.
func (SystemKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

// Get retrieves a secret from the keyring.
func (SystemKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Delete removes a secret from the keyring.
func (SystemKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// Keyring stores each scope as a keyring service, keys as users.
type Keyring struct {
	provider KeyringProvider
}

// NewKeyring creates a keyring backend. A nil provider uses the OS keyring.
func NewKeyring(provider KeyringProvider) *Keyring {
	if provider == nil {
		provider = SystemKeyring{}
	}
	return &Keyring{provider: provider}
}

// Scope returns the store for name.
func (k *Keyring) Scope(name string) Store {
	return &keyringStore{provider: k.provider, service: KeyringServicePrefix + "-" + name}
}

// Close is a no-op.
func (k *Keyring) Close() error {
	return nil
}

type keyringStore struct {
	provider KeyringProvider
	service  string
}

func (s *keyringStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	v, err := s.provider.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(err, "get", s.service, key)
	}
	return v, true, nil
}

func (s *keyringStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapErr(s.provider.Set(s.service, key, value), "set", s.service, key)
}

func (s *keyringStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.provider.Delete(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return wrapErr(err, "remove", s.service, key)
}
