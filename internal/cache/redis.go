package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the Redis instance described by url (redis:// or rediss://).
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// Set stores value under key for ttl.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

// Take atomically reads and deletes key.
func (s *RedisStore) Take(ctx context.Context, key string) (string, error) {
	val, err := s.client.GetDel(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
