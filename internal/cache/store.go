// Package cache is the read-through cache that sits in front of the record
// store.
//
// A Store is a dumb TTL key-value store (redis in production, an in-process
// map for single-node setups and tests). Cache layers the policy on top:
// TTL classes, JSON snapshots, read-through on miss and best-effort
// invalidation.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// Store is a TTL key-value store addressed by UTF-8 string keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes every given key. Absent keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
