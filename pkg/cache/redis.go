package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces entry keys in a shared Redis database.
const DefaultRedisPrefix = "tmdb:cache:"

// RedisStore keeps each entry as a Redis string without expiry.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a store on top of an existing Redis client.
// An empty prefix selects DefaultRedisPrefix.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (r *RedisStore) redisKey(key string) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return r.prefix + key, nil
}

// Has implements Store.
func (r *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	rk, err := r.redisKey(key)
	if err != nil {
		return false, err
	}
	countOp(backendRedis, "has")

	n, err := r.redis.Exists(ctx, rk).Result()
	if err != nil {
		countErr(backendRedis, "has")
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	rk, err := r.redisKey(key)
	if err != nil {
		return nil, err
	}
	countOp(backendRedis, "get")

	data, err := r.redis.Get(ctx, rk).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		countErr(backendRedis, "get")
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Put implements Store.
func (r *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	rk, err := r.redisKey(key)
	if err != nil {
		return err
	}
	countOp(backendRedis, "put")

	if err := r.redis.Set(ctx, rk, value, 0).Err(); err != nil {
		countErr(backendRedis, "put")
		return fmt.Errorf("redis set: %w", err)
	}

	CacheWrittenBytes.WithLabelValues(backendRedis).Add(float64(len(value)))
	return nil
}

// Keys implements Store using SCAN so large caches do not block Redis.
func (r *RedisStore) Keys(ctx context.Context) ([]string, error) {
	countOp(backendRedis, "keys")

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.redis.Scan(ctx, cursor, r.prefix+"*", 500).Result()
		if err != nil {
			countErr(backendRedis, "keys")
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, rk := range batch {
			keys = append(keys, strings.TrimPrefix(rk, r.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	// SCAN may return a key more than once.
	sort.Strings(keys)
	out := keys[:0]
	for i, k := range keys {
		if i > 0 && k == keys[i-1] {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}
