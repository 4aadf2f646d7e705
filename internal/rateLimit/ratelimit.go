package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/event-ticketing/internal/adapters/redis"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

// RateLimiter is a fixed-window counter in Redis. Fail-open: when Redis is
// unreachable the request is allowed rather than blocking check-in lanes.
type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, period)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return true
	}

	allowed := incr.Val() <= int64(rate)
	if !allowed {
		observability.RateLimitExceeded.Inc()
	}
	return allowed
}
