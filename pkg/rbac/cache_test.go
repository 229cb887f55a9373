package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	cache := NewMemoryCache(16, time.Minute, nil)
	ctx := context.Background()
	scope := ScopeTenant

	if _, ok := cache.Get(ctx, 1, &scope, strPtr("tenant-1")); ok {
		t.Fatal("Empty cache should miss")
	}

	cache.Set(ctx, 1, &scope, strPtr("tenant-1"), NewPermissionSet(PermissionClinicalAccess))
	perms, ok := cache.Get(ctx, 1, &scope, strPtr("tenant-1"))
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if !perms.Has(PermissionClinicalAccess) {
		t.Error("Cached set lost its contents")
	}

	// A different scope ID is a different key.
	if _, ok := cache.Get(ctx, 1, &scope, strPtr("tenant-2")); ok {
		t.Error("Different tenant should miss")
	}
}

func TestMemoryCacheInvalidateUser(t *testing.T) {
	cache := NewMemoryCache(16, time.Minute, nil)
	ctx := context.Background()
	scope := ScopeTenant

	cache.Set(ctx, 1, &scope, strPtr("tenant-1"), NewPermissionSet(PermissionClinicalAccess))
	cache.Set(ctx, 1, &scope, strPtr("tenant-2"), NewPermissionSet(PermissionBillingAccess))
	cache.Set(ctx, 2, &scope, strPtr("tenant-1"), NewPermissionSet(PermissionViewSchedule))

	cache.InvalidateUser(ctx, 1)

	if _, ok := cache.Get(ctx, 1, &scope, strPtr("tenant-1")); ok {
		t.Error("User 1 entries should be gone")
	}
	if _, ok := cache.Get(ctx, 1, &scope, strPtr("tenant-2")); ok {
		t.Error("All of user 1's entries should be gone")
	}
	if _, ok := cache.Get(ctx, 2, &scope, strPtr("tenant-1")); !ok {
		t.Error("Other users' entries should survive")
	}
}

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Minute, nil, nil), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, _ := newRedisCache(t)
	ctx := context.Background()
	scope := ScopeTenant

	if _, ok := cache.Get(ctx, 1, &scope, strPtr("tenant-1")); ok {
		t.Fatal("Empty cache should miss")
	}

	cache.Set(ctx, 1, &scope, strPtr("tenant-1"), NewPermissionSet(PermissionClinicalAccess, PermissionViewSchedule))
	perms, ok := cache.Get(ctx, 1, &scope, strPtr("tenant-1"))
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if !perms.Has(PermissionClinicalAccess) || !perms.Has(PermissionViewSchedule) {
		t.Errorf("Cached set lost its contents: %v", perms.List())
	}
}

func TestRedisCacheInvalidateUser(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()
	scope := ScopeTenant

	cache.Set(ctx, 1, &scope, strPtr("tenant-1"), NewPermissionSet(PermissionClinicalAccess))
	cache.Set(ctx, 1, &scope, strPtr("tenant-2"), NewPermissionSet(PermissionBillingAccess))
	cache.Set(ctx, 2, &scope, strPtr("tenant-1"), NewPermissionSet(PermissionViewSchedule))

	cache.InvalidateUser(ctx, 1)

	if _, ok := cache.Get(ctx, 1, &scope, strPtr("tenant-1")); ok {
		t.Error("User 1 entries should be gone")
	}
	if _, ok := cache.Get(ctx, 1, &scope, strPtr("tenant-2")); ok {
		t.Error("All of user 1's entries should be gone")
	}
	if _, ok := cache.Get(ctx, 2, &scope, strPtr("tenant-1")); !ok {
		t.Error("Other users' entries should survive")
	}
	if mr.Exists(redisUserIndexKey(1)) {
		t.Error("User 1 index set should be deleted")
	}
}

func TestRedisCacheWildcardSet(t *testing.T) {
	cache, _ := newRedisCache(t)
	ctx := context.Background()

	cache.Set(ctx, 1, nil, nil, NewPermissionSet(PermissionAll))
	perms, ok := cache.Get(ctx, 1, nil, nil)
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if !perms.HasWildcard() {
		t.Error("Wildcard set should survive the round trip")
	}
}
