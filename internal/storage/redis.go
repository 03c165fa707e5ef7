package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Redis keeps scopes in a shared redis keyspace as "<prefix>:<scope>:<key>".
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to redis and verifies the connection with PING.
func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, wrapErr(fmt.Errorf("ping to redis: %w", err), "open", "", opts.Addr)
	}
	return NewRedis(client, opts.Prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "walletlink"
	}
	return &Redis{client: client, prefix: prefix}
}

// Scope returns the store for name.
func (r *Redis) Scope(name string) Store {
	return &redisStore{backend: r, scope: name}
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Key returns the redis key used for key in scope.
func (r *Redis) Key(scope, key string) string {
	return r.prefix + ":" + scope + ":" + key
}

type redisStore struct {
	backend *Redis
	scope   string
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.backend.client.Get(ctx, s.backend.Key(s.scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(err, "get", s.scope, key)
	}
	return v, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string) error {
	err := s.backend.client.Set(ctx, s.backend.Key(s.scope, key), value, 0).Err()
	return wrapErr(err, "set", s.scope, key)
}

func (s *redisStore) Remove(ctx context.Context, key string) error {
	err := s.backend.client.Del(ctx, s.backend.Key(s.scope, key)).Err()
	return wrapErr(err, "remove", s.scope, key)
}
