package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// MarkOnce sets the dedup key and reports whether it was already present.
// Redis is only the fast path; the database status check stays the truth.
func MarkOnce(ctx context.Context, rdb *redis.Client, key string) (seen bool) {
	if rdb == nil {
		return false
	}
	ok, err := rdb.SetNX(ctx, key, "1", TTLDedup).Result()
	if err != nil {
		return false
	}
	return !ok
}
