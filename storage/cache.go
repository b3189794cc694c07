package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// DefaultResponseTTL bounds how stale a cached listing may be. Writes do not
// evict entries.
const DefaultResponseTTL = 10 * time.Second

// ResponseCache memoizes listing results per key for a fixed TTL. Misses and
// backend failures are indistinguishable to callers.
type ResponseCache interface {
	Get(ctx context.Context, key string, out any) bool
	Put(ctx context.Context, key string, value any)
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func companiesCacheKey(userID string) string {
	return "companies:" + userID
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCache is the in-process ResponseCache. Values are stored encoded so
// callers never share slices with each other.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache creates an in-process cache; a non-positive ttl disables it.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl < 0 {
		ttl = 0
	}
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Get(_ context.Context, key string, out any) bool {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if ok && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	return sonic.Unmarshal(entry.payload, out) == nil
}

func (m *MemoryCache) Put(_ context.Context, key string, value any) {
	if m.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(value)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{payload: data, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
}

// Len reports the number of live entries.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.entries {
		if now.Before(e.expiresAt) {
			n++
			continue
		}
		delete(m.entries, k)
	}
	return n
}

// RedisCache shares cached listings between instances.
type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisCache creates a Redis-backed cache with the given TTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisCache{redis: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	// Any read error, redis.Nil included, is a miss.
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *RedisCache) Put(ctx context.Context, key string, value any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}
