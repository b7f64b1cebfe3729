// Package redis is the Redis-backed storage.KeyStore driver.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps keys under a common prefix.
type Store struct {
	cli    *redis.Client
	prefix string
}

// New parses url, pings the server and returns a Store. Keys are namespaced with prefix.
func New(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}

	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Store{cli: cli, prefix: prefix}, nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Put(ctx context.Context, key string, ttl time.Duration) error {
	return s.cli.Set(ctx, s.key(key), 1, ttl).Err()
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.cli.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Take uses GETDEL so only one caller can consume a key.
func (s *Store) Take(ctx context.Context, key string) (bool, error) {
	err := s.cli.GetDel(ctx, s.key(key)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Close() error {
	return s.cli.Close()
}
