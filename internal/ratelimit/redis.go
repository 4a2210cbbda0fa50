package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements the same Limiter interface as MemoryLimiter but
// shares its counters across every process talking to the same Redis
// instance — the "distributed backend" spec §9 asks the limiter to be
// pluggable for. It approximates the token bucket with a fixed one-minute
// window counter, which is sufficient for the coarse per-minute caps spec
// §4.4 defines (RATE_LIMIT_REPORTS_PER_MINUTE, RATE_LIMIT_IP_PER_MINUTE).
type RedisLimiter struct {
	client    *redis.Client
	limit     int64
	window    time.Duration
	keyPrefix string
}

func NewRedisLimiter(client *redis.Client, limitPerMinute int, keyPrefix string) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		limit:     int64(limitPerMinute),
		window:    time.Minute,
		keyPrefix: keyPrefix,
	}
}

func (l *RedisLimiter) Allow(key string) Decision {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	fullKey := l.keyPrefix + ":" + key

	count, err := l.client.Incr(ctx, fullKey).Result()
	if err != nil {
		// Fail open: a Redis outage must not take the control plane down.
		return Decision{Allowed: true}
	}
	if count == 1 {
		l.client.Expire(ctx, fullKey, l.window)
	}

	if count <= l.limit {
		return Decision{Allowed: true}
	}

	ttl, err := l.client.TTL(ctx, fullKey).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return Decision{Allowed: false, RetryAfter: ttl}
}
