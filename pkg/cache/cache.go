// Package cache provides a Redis-backed read cache for the proxy endpoints.
//
// Listing pages and raw records are cached as JSON under a fixed TTL. The
// cache is a pure accelerator for the HTTP proxy surface; the ETL run always
// reads the upstream directly so a run never republishes stale records.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates the requested key was not found in cache.
var ErrCacheMiss = errors.New("cache miss")

// Prometheus metrics for cache operations.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "animal_cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "animal_cache_misses_total",
		Help: "Total cache misses",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_cache_errors_total",
		Help: "Total cache operation errors",
	}, []string{"operation"})
)

// Store caches JSON payloads in Redis. A nil Redis client disables the store:
// every Get misses and every Set is a no-op, so callers need no special case.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// New creates a store writing entries with the given TTL.
func New(redisClient *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Store{redis: redisClient, ttl: ttl}
}

// RecordKey is the cache key for one raw record.
func RecordKey(id int64) string {
	return fmt.Sprintf("animals:record:%d", id)
}

// PageKey is the cache key for one listing page.
func PageKey(page int) string {
	return fmt.Sprintf("animals:page:%d", page)
}

// GetJSON loads the entry under key into v.
// Returns ErrCacheMiss if the key is absent or the store is disabled.
func (s *Store) GetJSON(ctx context.Context, key string, v any) error {
	if s == nil || s.redis == nil {
		cacheMisses.Inc()
		return ErrCacheMiss
	}

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("redis get: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("decode cache entry: %w", err)
	}

	cacheHits.Inc()
	return nil
}

// SetJSON stores v under key with the configured TTL.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	if s == nil || s.redis == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("encode cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}
