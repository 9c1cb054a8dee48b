package edgecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viccon/sturdyc"
)

var (
	// ErrMiss indicates the requested key was not found or is expired.
	ErrMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the backing store for cached responses. Get returns ErrMiss for
// absent or expired keys. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Purge(ctx context.Context, key string) error
}

// RedisStore keeps entries in Redis with key-level TTLs. An optional sturdyc
// hot layer in front of Redis absorbs repeated reads of the same key (homepage
// and listing keys are hit far more often than their TTL window); purges and
// writes go through both layers.
type RedisStore struct {
	redis *redis.Client
	hot   *sturdyc.Client[*Entry]
}

// HotLayerConfig sizes the in-process hot layer. A zero TTL disables it.
type HotLayerConfig struct {
	Capacity int
	Shards   int
	TTL      time.Duration
}

// DefaultHotLayer returns the hot layer sizing used by the edge server.
func DefaultHotLayer() HotLayerConfig {
	return HotLayerConfig{
		Capacity: 2048,
		Shards:   64,
		TTL:      30 * time.Second,
	}
}

// NewRedisStore creates a store backed by the given Redis client.
func NewRedisStore(redisClient *redis.Client, hotCfg HotLayerConfig) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	s := &RedisStore{redis: redisClient}
	if hotCfg.TTL > 0 {
		shards := hotCfg.Shards
		if shards <= 0 {
			shards = 64
		}
		capacity := hotCfg.Capacity
		if capacity <= 0 {
			capacity = 2048
		}
		// 10% eviction once the hot layer fills up.
		s.hot = sturdyc.New[*Entry](capacity, shards, hotCfg.TTL, 10)
	}
	return s
}

// Get retrieves the entry stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	if s.hot != nil {
		if entry, ok := s.hot.Get(key); ok {
			if !entry.IsExpired(time.Now()) {
				CacheHits.WithLabelValues("hot").Inc()
				return entry, nil
			}
			s.hot.Delete(key)
		}
	}

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired(time.Now()) {
		_ = s.Purge(ctx, key)
		CacheMisses.Inc()
		return nil, ErrMiss
	}

	if s.hot != nil {
		s.hot.Set(key, &entry)
	}
	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores an entry under key. The Redis key expires with the entry TTL, so
// stale entries vanish without a sweeper. Entries with a non-positive TTL are
// not stored.
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.TTL <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key, data, entry.TTL).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	if s.hot != nil {
		s.hot.Set(key, entry)
	}
	return nil
}

// Purge removes the entry stored under key from both layers. Purging an
// absent key is not an error.
func (s *RedisStore) Purge(ctx context.Context, key string) error {
	if s.hot != nil {
		s.hot.Delete(key)
	}
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		CacheErrors.WithLabelValues("purge").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	CachePurges.Inc()
	return nil
}
