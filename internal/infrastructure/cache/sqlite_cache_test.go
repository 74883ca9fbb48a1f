package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"foodtrace/internal/infrastructure/persistence/sqlite/model"
)

func setupSQLiteCache(t *testing.T) *SQLiteCache {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "cache.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(&model.TraceKV{}); err != nil {
		t.Fatalf("auto migrate trace_kv: %v", err)
	}

	return NewSQLiteCache(db, 0)
}

func TestSQLiteCacheSetGetDelete(t *testing.T) {
	cache := setupSQLiteCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "verify:42", `{"score":0.8}`, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := cache.Get(ctx, "verify:42")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || value != `{"score":0.8}` {
		t.Fatalf("Get() = %q, found=%v", value, found)
	}

	if err := cache.Set(ctx, "verify:42", `{"score":1}`, 0); err != nil {
		t.Fatalf("Set(update) error = %v", err)
	}
	value, found, err = cache.Get(ctx, "verify:42")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || value != `{"score":1}` {
		t.Fatalf("Get() after update = %q, found=%v", value, found)
	}

	if err := cache.Delete(ctx, "verify:42"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, err = cache.Get(ctx, "verify:42"); err != nil || found {
		t.Fatalf("Get() after delete found=%v err=%v", found, err)
	}
}

func TestSQLiteCacheExpiry(t *testing.T) {
	cache := setupSQLiteCache(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	if err := cache.Set(ctx, "chain_status:1", "complete", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, found, _ := cache.Get(ctx, "chain_status:1"); !found {
		t.Fatalf("Get() before expiry found=false")
	}

	now = now.Add(2 * time.Minute)
	if _, found, err := cache.Get(ctx, "chain_status:1"); err != nil || found {
		t.Fatalf("Get() after expiry found=%v err=%v", found, err)
	}
}

func TestCachesRejectEmptyKey(t *testing.T) {
	ctx := context.Background()
	caches := map[string]interface {
		Get(context.Context, string) (string, bool, error)
		Set(context.Context, string, string, time.Duration) error
		Delete(context.Context, string) error
	}{
		"sqlite": setupSQLiteCache(t),
		"memory": NewMemoryCache(8, time.Minute),
	}

	for name, cache := range caches {
		if err := cache.Set(ctx, " ", "v", 0); err == nil {
			t.Fatalf("%s Set() expected error for empty key", name)
		}
		if _, _, err := cache.Get(ctx, ""); err == nil {
			t.Fatalf("%s Get() expected error for empty key", name)
		}
		if err := cache.Delete(ctx, ""); err == nil {
			t.Fatalf("%s Delete() expected error for empty key", name)
		}
	}
}
