// Package db defines the key-value facade shared by the embedding cache and the budget
// counters. The relational memory and glossary tables live in db/sqldb.
package db

import (
	"context"
	"time"
)

// ValueStore caches opaque values such as embedding vectors.
type ValueStore interface {
	// Get returns ErrKeyNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CounterStore holds integer counters that age out, such as token budgets.
type CounterStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	// Expire with nx sets the TTL only when the key has none.
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store is a connected key-value backend.
type Store interface {
	ValueStore
	CounterStore
	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}
