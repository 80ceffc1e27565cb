// Package cache keeps short-lived listing snapshots, such as the ranked hot list, in
// Redis when one is reachable and in process memory otherwise.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss reports an absent or expired snapshot.
	ErrMiss = errors.New("cache: miss")
	// ErrInvalidTTL rejects snapshots that would never expire.
	ErrInvalidTTL = errors.New("cache: ttl must be positive")
)

// Cache stores serialized snapshots under a key until their TTL runs out. Del lets
// writers drop a snapshot as soon as the data behind it changes.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisCache shares snapshots between site instances.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache uses an already configured client; closing it stays with the caller.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	snapshot, err := r.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", ErrMiss
	case err != nil:
		return "", err
	}
	return snapshot, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// MemoryCache serves a single process. Expired snapshots are dropped when read or
// overwritten.
type MemoryCache struct {
	mu        sync.Mutex
	snapshots map[string]snapshot
	clock     func() time.Time
}

type snapshot struct {
	payload string
	expires time.Time
}

// NewMemoryCache builds an empty cache. A nil clock uses time.Now.
func NewMemoryCache(clock func() time.Time) *MemoryCache {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryCache{snapshots: make(map[string]snapshot), clock: clock}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.snapshots[key]
	if !ok {
		return "", ErrMiss
	}
	if !m.clock().Before(entry.expires) {
		delete(m.snapshots, key)
		return "", ErrMiss
	}
	return entry.payload, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	m.mu.Lock()
	m.snapshots[key] = snapshot{payload: value, expires: m.clock().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.snapshots, key)
	m.mu.Unlock()
	return nil
}

// New picks Redis when client answers a ping within ctx and memory otherwise.
func New(ctx context.Context, client *redis.Client) Cache {
	if client == nil {
		return NewMemoryCache(nil)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return NewMemoryCache(nil)
	}
	return NewRedisCache(client)
}
