package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisPrefix is the key prefix for persisted session hashes. The profile name
// is appended, so every profile owns one hash holding the user and token fields.
const RedisPrefix = "campus:session:"

// Redis keeps the session in a Redis hash so several terminals (a lab machine,
// a kiosk) can share one login.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, addr, profile string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "storage: redis connection failed")
	}

	return NewRedisFromClient(client, profile), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, profile string) *Redis {
	return &Redis{client: client, key: RedisPrefix + profile}
}

// Get returns one field of the profile's hash.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.HGet(ctx, r.key, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "storage: redis HGET %s %s", r.key, key)
	}
	return v, nil
}

// Set writes one field of the profile's hash.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.key, key, value).Err(); err != nil {
		return errors.Wrapf(err, "storage: redis HSET %s %s", r.key, key)
	}
	return nil
}

// Delete removes fields from the profile's hash.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.key, keys...).Err(); err != nil {
		return errors.Wrapf(err, "storage: redis HDEL %s", r.key)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
