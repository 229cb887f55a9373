package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/caregrid/caregrid/pkg/observability"
)

// PermissionCache is an optional optimization layer in front of the stores.
// Implementations must support synchronous per-user invalidation so that
// assignment writes are immediately visible.
type PermissionCache interface {
	Invalidator
	Get(ctx context.Context, userID int64, scope *Scope, scopeID *string) (PermissionSet, bool)
	Set(ctx context.Context, userID int64, scope *Scope, scopeID *string, perms PermissionSet)
}

func cacheKey(userID int64, scope *Scope, scopeID *string) string {
	s, id := "-", "-"
	if scope != nil {
		s = string(*scope)
	}
	if scopeID != nil {
		id = *scopeID
	}
	return fmt.Sprintf("%d|%s|%s", userID, s, id)
}

// MemoryCache is an in-process expirable LRU permission cache. A per-user
// key index makes InvalidateUser O(entries-per-user) instead of a full scan.
type MemoryCache struct {
	mu      sync.Mutex
	lru     *expirable.LRU[string, PermissionSet]
	userIdx map[int64]map[string]struct{}
	metrics *observability.Metrics
}

// NewMemoryCache creates a memory cache holding at most size entries, each
// expiring after ttl. metrics may be nil.
func NewMemoryCache(size int, ttl time.Duration, metrics *observability.Metrics) *MemoryCache {
	c := &MemoryCache{
		userIdx: make(map[int64]map[string]struct{}),
		metrics: metrics,
	}
	c.lru = expirable.NewLRU[string, PermissionSet](size, func(key string, _ PermissionSet) {
		c.dropFromIndex(key)
	}, ttl)
	return c
}

func (c *MemoryCache) Get(_ context.Context, userID int64, scope *Scope, scopeID *string) (PermissionSet, bool) {
	perms, ok := c.lru.Get(cacheKey(userID, scope, scopeID))
	c.observe(ok)
	return perms, ok
}

func (c *MemoryCache) Set(_ context.Context, userID int64, scope *Scope, scopeID *string, perms PermissionSet) {
	key := cacheKey(userID, scope, scopeID)
	c.mu.Lock()
	if c.userIdx[userID] == nil {
		c.userIdx[userID] = make(map[string]struct{})
	}
	c.userIdx[userID][key] = struct{}{}
	c.mu.Unlock()
	c.lru.Add(key, perms)
}

func (c *MemoryCache) InvalidateUser(_ context.Context, userID int64) {
	c.mu.Lock()
	keys := make([]string, 0, len(c.userIdx[userID]))
	for key := range c.userIdx[userID] {
		keys = append(keys, key)
	}
	delete(c.userIdx, userID)
	c.mu.Unlock()

	for _, key := range keys {
		c.lru.Remove(key)
	}
	if c.metrics != nil && len(keys) > 0 {
		c.metrics.CacheInvalidated.WithLabelValues("memory").Add(float64(len(keys)))
	}
}

func (c *MemoryCache) dropFromIndex(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for userID, keys := range c.userIdx {
		if _, ok := keys[key]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.userIdx, userID)
			}
			return
		}
	}
}

func (c *MemoryCache) observe(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.WithLabelValues("memory").Inc()
	} else {
		c.metrics.CacheMissesTotal.WithLabelValues("memory").Inc()
	}
}

// RedisCache shares resolved permission sets across instances. Each user's
// keys are tracked in an index set so InvalidateUser can delete them all
// without a KEYS scan.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewRedisCache creates a Redis-backed permission cache. metrics and logger
// may be nil.
func NewRedisCache(client *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *observability.Logger) *RedisCache {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &RedisCache{client: client, ttl: ttl, metrics: metrics, logger: logger}
}

func redisPermKey(key string) string {
	return "caregrid:perms:" + key
}

func redisUserIndexKey(userID int64) string {
	return fmt.Sprintf("caregrid:perms:idx:%d", userID)
}

func (c *RedisCache) Get(ctx context.Context, userID int64, scope *Scope, scopeID *string) (PermissionSet, bool) {
	data, err := c.client.Get(ctx, redisPermKey(cacheKey(userID, scope, scopeID))).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("Redis permission cache read failed")
		}
		c.observe(false)
		return nil, false
	}

	var perms []Permission
	if err := json.Unmarshal(data, &perms); err != nil {
		c.observe(false)
		return nil, false
	}
	c.observe(true)
	return NewPermissionSet(perms...), true
}

func (c *RedisCache) Set(ctx context.Context, userID int64, scope *Scope, scopeID *string, perms PermissionSet) {
	data, err := json.Marshal(perms.List())
	if err != nil {
		return
	}

	key := redisPermKey(cacheKey(userID, scope, scopeID))
	idx := redisUserIndexKey(userID)

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, idx, key)
	pipe.Expire(ctx, idx, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WithError(err).Warn("Redis permission cache write failed")
	}
}

func (c *RedisCache) InvalidateUser(ctx context.Context, userID int64) {
	idx := redisUserIndexKey(userID)
	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		c.logger.WithError(err).Warn("Redis permission cache invalidation failed")
		return
	}

	keys = append(keys, idx)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis permission cache invalidation failed")
		return
	}
	if c.metrics != nil {
		c.metrics.CacheInvalidated.WithLabelValues("redis").Add(float64(len(keys) - 1))
	}
}

func (c *RedisCache) observe(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
	} else {
		c.metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
	}
}
