package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"
)

// Store holds encoded responses by key.
type Store interface {
	// Get returns the stored value and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore is a Redis-backed Store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Store over an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements Store. A missing key is a miss, not an error.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

const (
	defaultBufferItems = 64
	// counters per expected entry, with entries assumed around 1KB
	countersPerEntry = 10
	assumedEntrySize = 1 << 10
)

// MemoryStore is an in-process Store backed by ristretto. Entries are
// weighted by their encoded size.
type MemoryStore struct {
	cache *ristretto.Cache
}

// NewMemoryStore creates an in-process store bounded to maxCost bytes.
func NewMemoryStore(maxCost int64) (*MemoryStore, error) {
	if maxCost <= 0 {
		return nil, fmt.Errorf("memory store: max cost must be positive, got %d", maxCost)
	}

	numCounters := maxCost / assumedEntrySize * countersPerEntry
	if numCounters < 1000 {
		numCounters = 1000
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	return &MemoryStore{cache: c}, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("memory store: unexpected value type %T", v)
	}
	return data, true, nil
}

// Set implements Store. The write is applied before Set returns.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if !s.cache.SetWithTTL(key, value, int64(len(value)), ttl) {
		return fmt.Errorf("memory store: write for %s dropped", key)
	}
	s.cache.Wait()
	return nil
}

// Close stops the store's background goroutines.
func (s *MemoryStore) Close() {
	s.cache.Close()
}

// NoopStore never holds anything.
type NoopStore struct{}

// Get implements Store.
func (NoopStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set implements Store.
func (NoopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
