package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. Expired entries are invisible to Get
// immediately and are reclaimed by go-cache's janitor every cleanup interval.
type MemoryStore struct {
	items *gocache.Cache
}

func NewMemoryStore(cleanup time.Duration) *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, cleanup)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	data := v.([]byte)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data := make([]byte, len(value))
	copy(data, value)
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.items.Set(key, data, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.items.Delete(k)
	}
	return nil
}

// Expiry reports when key expires. The zero time means no expiry.
func (s *MemoryStore) Expiry(key string) (time.Time, bool) {
	_, exp, ok := s.items.GetWithExpiration(key)
	return exp, ok
}

func (s *MemoryStore) Close() error {
	s.items.Flush()
	return nil
}
