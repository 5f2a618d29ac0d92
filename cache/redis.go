package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// REDIS CLIENT - Production cache backend
// =============================================================================

// Redis implements Client over a go-redis connection pool. The pool is
// process-wide; construct one Redis per process and share it.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to the given address ("host:port"). An empty address
// uses the go-redis default (localhost:6379).
func NewRedis(addr string) *Redis {
	if addr == "" {
		addr = "localhost:6379"
	}
	return &Redis{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisFromClient wraps an existing client (used by tests with miniredis
// or a shared pool).
func NewRedisFromClient(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return raw, err
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// DeletePattern scans for matching keys and deletes them in batches.
// SCAN is cursor-based and non-blocking; a partial delete is acceptable
// per the advisory contract.
func (r *Redis) DeletePattern(ctx context.Context, pattern string) error {
	iter := r.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.rdb.Del(ctx, keys...).Err()
	}
	return nil
}

// Ping verifies connectivity at startup.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
