package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"weibogeo/pkg/metrics"
)

// ErrCacheMiss is returned when a place name has no cached coordinates.
var ErrCacheMiss = errors.New("geocode cache miss")

// Cache stores resolved coordinates by place name. Get returns
// ErrCacheMiss when the name is unknown.
type Cache interface {
	Get(ctx context.Context, name string) (Coordinates, error)
	Set(ctx context.Context, name string, coords Coordinates) error
}

// memoryCache is a process-local cache with per-entry TTL. Zero TTL
// means entries never expire.
type memoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

type memoryEntry struct {
	coords    Coordinates
	expiresAt time.Time
}

// NewMemoryCache creates an in-process cache.
func NewMemoryCache(ttl time.Duration) Cache {
	return &memoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

func (m *memoryCache) Get(_ context.Context, name string) (Coordinates, error) {
	m.mu.RLock()
	entry, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok || (!entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt)) {
		metrics.GeocodeCacheMisses.Inc()
		return Coordinates{}, ErrCacheMiss
	}
	metrics.GeocodeCacheHits.WithLabelValues("memory").Inc()
	return entry.coords, nil
}

func (m *memoryCache) Set(_ context.Context, name string, coords Coordinates) error {
	entry := memoryEntry{coords: coords}
	if m.ttl > 0 {
		entry.expiresAt = time.Now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[name] = entry
	m.mu.Unlock()
	return nil
}

// redisCache shares resolved coordinates across processes. Keys are
// namespaced so one instance can serve several tools.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

const redisKeyPrefix = "weibogeo:geocode:"

// NewRedisCache creates a cache backed by the given Redis instance.
func NewRedisCache(addr string, ttl time.Duration) Cache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (r *redisCache) Get(ctx context.Context, name string) (Coordinates, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.GeocodeCacheMisses.Inc()
			return Coordinates{}, ErrCacheMiss
		}
		return Coordinates{}, fmt.Errorf("redis get: %w", err)
	}
	var coords Coordinates
	if err := json.Unmarshal([]byte(val), &coords); err != nil {
		return Coordinates{}, fmt.Errorf("redis entry for %q: %w", name, err)
	}
	metrics.GeocodeCacheHits.WithLabelValues("redis").Inc()
	return coords, nil
}

func (r *redisCache) Set(ctx context.Context, name string, coords Coordinates) error {
	data, err := json.Marshal(coords)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKeyPrefix+name, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
