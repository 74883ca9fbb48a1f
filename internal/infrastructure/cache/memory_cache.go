package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"foodtrace/internal/ports"
)

// MemoryCache is a process-local LRU with a single expiry for all entries.
// The per-call ttl is ignored; the LRU evicts on its own schedule.
type MemoryCache struct {
	lru *expirable.LRU[string, string]
}

var _ ports.Cache = (*MemoryCache)(nil)

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return "", false, err
	}
	value, ok := c.lru.Get(trimmedKey)
	return value, ok, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value string, _ time.Duration) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}
	c.lru.Add(trimmedKey, value)
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}
	c.lru.Remove(trimmedKey)
	return nil
}
