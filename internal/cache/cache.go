package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// TTL holds the three expiry classes every read path picks from.
type TTL struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

func DefaultTTL() TTL {
	return TTL{
		Short:  120 * time.Second,
		Medium: 600 * time.Second,
		Long:   1800 * time.Second,
	}
}

// Cache applies the read-through and invalidation policy on top of a Store.
//
// A cache failure never fails a request: reads fall through to the loader and
// failed writes or deletes are logged. The record store stays the source of
// truth.
type Cache struct {
	store  Store
	ttl    TTL
	logger *slog.Logger
}

func New(store Store, ttl TTL, logger *slog.Logger) *Cache {
	return &Cache{store: store, ttl: ttl, logger: logger}
}

func (c *Cache) TTL() TTL { return c.ttl }

// ReadThrough returns the snapshot under key, or calls load on a miss and
// stores its result for ttl. Loader errors are returned as-is and nothing is
// cached.
func ReadThrough[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		decodeErr := json.Unmarshal(data, &v)
		if decodeErr == nil {
			return v, nil
		}
		c.logger.Warn("cache: discarding undecodable snapshot",
			slog.String("key", key),
			slog.String("error", decodeErr.Error()),
		)
	case !errors.Is(err, ErrMiss):
		c.logger.Warn("cache: get failed, reading through",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Put(ctx, key, v, ttl)
	return v, nil
}

// Put overwrites key with a fresh snapshot of v.
func (c *Cache) Put(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache: encoding snapshot",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("cache: set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate deletes every key. Empty and duplicate keys are dropped.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	seen := make(map[string]struct{}, len(keys))
	unique := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	if len(unique) == 0 {
		return
	}

	if err := c.store.Delete(ctx, unique...); err != nil {
		c.logger.Warn("cache: invalidation failed",
			slog.Any("keys", unique),
			slog.String("error", err.Error()),
		)
		return
	}
	c.logger.Debug("cache: invalidated", slog.Int("keys", len(unique)))
}

func (c *Cache) Close() error {
	return c.store.Close()
}
