package semcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the durable KVStore backing the semantic cache. The teacher
// declared go-redis in go.mod but never used it; wired here so the cache
// survives a process restart instead of cold-starting.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "semcache:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

var _ KVStore = (*RedisStore)(nil)

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("semcache.RedisStore.Get: %w", err)
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("semcache.RedisStore.Set: %w", err)
	}
	return nil
}

func (r *RedisStore) Scan(ctx context.Context) ([][]byte, error) {
	var out [][]byte
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		val, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		out = append(out, val)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("semcache.RedisStore.Scan: %w", err)
	}
	return out, nil
}
