package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewMemoryCache(2, time.Minute)
	ctx := context.Background()

	for _, key := range []string{"verify:1", "verify:2"} {
		if err := cache.Set(ctx, key, key, 0); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}
	if _, found, _ := cache.Get(ctx, "verify:1"); !found {
		t.Fatalf("Get(verify:1) found=false")
	}
	if err := cache.Set(ctx, "verify:3", "verify:3", 0); err != nil {
		t.Fatalf("Set(verify:3) error = %v", err)
	}

	if _, found, _ := cache.Get(ctx, "verify:2"); found {
		t.Fatalf("verify:2 should have been evicted")
	}
	if value, found, _ := cache.Get(ctx, "verify:1"); !found || value != "verify:1" {
		t.Fatalf("verify:1 = %q found=%v", value, found)
	}

	if err := cache.Delete(ctx, "verify:1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := cache.Get(ctx, "verify:1"); found {
		t.Fatalf("verify:1 found after delete")
	}
}
