package artifact

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type mapCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	hits   int
	broken bool
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return nil, false, errors.New("cache down")
	}
	d, ok := c.data[key]
	if ok {
		c.hits++
	}
	return d, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return errors.New("cache down")
	}
	c.data[key] = data
	return nil
}

func TestCachedBackendServesFromCache(t *testing.T) {
	inner := newScripted()
	cache := newMapCache()
	b := NewCachedBackend(inner, cache)
	ctx := context.Background()

	addr, err := b.Put(ctx, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	for i := 0; i < 3; i++ {
		data, err := b.Get(ctx, addr)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(data) != `{"a":1}` {
			t.Errorf("unexpected data %q", data)
		}
	}
	if inner.gets != 0 {
		t.Errorf("expected no backend reads, got %d", inner.gets)
	}
	if cache.hits != 3 {
		t.Errorf("expected 3 cache hits, got %d", cache.hits)
	}
}

func TestCachedBackendFillsOnMiss(t *testing.T) {
	inner := newScripted()
	addr, _ := inner.inner.Put(context.Background(), []byte(`{"b":2}`))
	cache := newMapCache()
	b := NewCachedBackend(inner, cache)

	if _, err := b.Get(context.Background(), addr); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := b.Get(context.Background(), addr); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inner.gets != 1 {
		t.Errorf("expected 1 backend read, got %d", inner.gets)
	}
}

func TestCachedBackendSurvivesCacheFailure(t *testing.T) {
	inner := newScripted()
	cache := newMapCache()
	cache.broken = true
	b := NewCachedBackend(inner, cache)

	addr, err := b.Put(context.Background(), []byte(`{"c":3}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := b.Get(context.Background(), addr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != `{"c":3}` {
		t.Errorf("unexpected data %q", data)
	}
}

func TestCachedBackendPropagatesStoreErrors(t *testing.T) {
	inner := newScripted()
	inner.getErrs = []error{NewNotFoundError("gone")}
	b := NewCachedBackend(inner, newMapCache())

	if _, err := b.Get(context.Background(), "missing"); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
