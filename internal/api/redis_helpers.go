package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// incrWithTTL 自增计数器，首次创建时设置过期时间。
func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// overLimit 判断计数是否超限。Redis 不可用时放行，避免限流故障阻断业务。
func overLimit(ctx context.Context, client redisRateCounter, key string, ttl time.Duration, limit int) bool {
	if client == nil || limit <= 0 {
		return false
	}
	count, err := incrWithTTL(ctx, client, key, ttl)
	if err != nil {
		return false
	}
	return count > int64(limit)
}
