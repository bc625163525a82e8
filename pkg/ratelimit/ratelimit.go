package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"taskpoint/pkg/rediskey"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewRedisStore),
)

// Store is a keyed counter with TTL. Correctness-critical throttling must
// not depend on single-process memory, so the store is injected and shared
// across service instances.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RedisStore struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisStore(p Params) Store {
	return &RedisStore{rdb: p.Redis}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	counterKey := rediskey.BuildRateLimitKey(key)

	count, err := s.rdb.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := s.rdb.Expire(ctx, counterKey, window).Err(); err != nil {
			return false, err
		}
	}

	return count <= int64(limit), nil
}
