package token

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimitedRedisClient is the subset of the redis client used by RedisStore.
type LimitedRedisClient interface {
	// GET key
	Get(ctx context.Context, key string) *redis.StringCmd
	// SET key value [EX seconds]
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	// DEL key [key ...]
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore persists tokens as plain string keys under a common prefix.
type RedisStore struct {
	rdb    LimitedRedisClient
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces every key, e.g. "garage-7:".
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(r *RedisStore) {
		r.prefix = prefix
	}
}

// WithTTL expires stored values after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(r *RedisStore) {
		r.ttl = ttl
	}
}

func NewRedisStore(rdb LimitedRedisClient, options ...RedisStoreOption) *RedisStore {
	r := &RedisStore{rdb: rdb}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, r.key(key), value, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, k := range keys {
		prefixed = append(prefixed, r.key(k))
	}
	return r.rdb.Del(ctx, prefixed...).Err()
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}
