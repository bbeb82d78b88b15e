package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps window counters in Redis so several intake nodes share limits
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new store backed by Redis
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "guard:ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromAddr creates a Redis client and store from connection settings
func NewRedisStoreFromAddr(addr, password string, db int, prefix string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStore(rdb, prefix)
}

func (s *RedisStore) key(key string, windowStart time.Time) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, key, strconv.FormatInt(windowStart.UnixMilli(), 10))
}

// Increment atomically increments the window counter and sets its expiry
func (s *RedisStore) Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	k := s.key(key, windowStart)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return incr.Val(), nil
}

// Count returns the window counter
func (s *RedisStore) Count(ctx context.Context, key string, windowStart time.Time, _ time.Duration) (int64, error) {
	n, err := s.client.Get(ctx, s.key(key, windowStart)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Stop closes the Redis client
func (s *RedisStore) Stop() {
	_ = s.client.Close()
}
