package artifact

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores fetched documents by address.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
}

// CachedBackend is a read-through cache in front of a Backend. Addresses are
// content derived, so a cached document never goes stale. Cache failures are
// logged and fall through to the backend.
type CachedBackend struct {
	backend Backend
	cache   Cache
}

// NewCachedBackend wraps b with cache c.
func NewCachedBackend(b Backend, c Cache) *CachedBackend {
	return &CachedBackend{backend: b, cache: c}
}

// Put stores data in the backend and primes the cache.
func (c *CachedBackend) Put(ctx context.Context, data []byte) (Address, error) {
	addr, err := c.backend.Put(ctx, data)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, string(addr), data); err != nil {
		slog.Warn("artifact cache write failed", "address", addr, "error", err)
	}
	return addr, nil
}

// Get serves from the cache when possible.
func (c *CachedBackend) Get(ctx context.Context, addr Address) ([]byte, error) {
	data, ok, err := c.cache.Get(ctx, string(addr))
	if err != nil {
		slog.Warn("artifact cache read failed", "address", addr, "error", err)
	} else if ok {
		return data, nil
	}

	data, err = c.backend.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, string(addr), data); err != nil {
		slog.Warn("artifact cache write failed", "address", addr, "error", err)
	}
	return data, nil
}

// RedisCache implements Cache on Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache returns a cache storing keys under prefix with the given TTL (0 means no expiry).
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached document, or ok=false on a miss.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a document.
func (r *RedisCache) Set(ctx context.Context, key string, data []byte) error {
	return r.client.Set(ctx, r.prefix+key, data, r.ttl).Err()
}
