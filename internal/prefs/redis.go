package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps preferences in Redis under <name>:<key>.
type RedisStore struct {
	client *redis.Client
	name   string
}

// OpenRedis connects to url and verifies the connection.
func OpenRedis(ctx context.Context, url, name string) (*RedisStore, error) {
	if url == "" {
		return nil, fmt.Errorf("prefs: redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStore(client, name), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, name string) *RedisStore {
	return &RedisStore{client: client, name: name}
}

func (s *RedisStore) key(k string) string {
	return s.name + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotSet
	}
	if err != nil {
		return "", fmt.Errorf("get preference %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
