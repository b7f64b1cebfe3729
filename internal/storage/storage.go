/*
Package storage defines the ephemeral key store used for short-lived, single-use
records such as proof-of-work nonces and proof tokens.

Two drivers exist: memory (single process) and redis (shared between instances).
*/
package storage

import (
	"context"
	"time"
)

// KeyStore holds keys with an expiry. Take is atomic: when two callers race on
// the same key exactly one of them observes true.
type KeyStore interface {
	// Put stores key until ttl elapses, replacing any previous entry.
	Put(ctx context.Context, key string, ttl time.Duration) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Take removes key and reports whether it was present and unexpired.
	Take(ctx context.Context, key string) (bool, error)

	// Close releases the store.
	Close() error
}
