package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript returns {allowed, count, pttl}. The window starts at the
// first request and the key expires with it.
var consumeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
  return {0, current, redis.call('PTTL', KEYS[1])}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, current, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter keeps one counter key per user.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "ai_rate:",
		limit:  limit,
		window: window,
	}
}

func (l *RedisLimiter) key(userID string) string {
	return l.prefix + userID
}

func (l *RedisLimiter) Consume(ctx context.Context, userID string) (Decision, error) {
	res, err := consumeScript.Run(ctx, l.client, []string{l.key(userID)}, l.limit, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("consume ai quota: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("consume ai quota: unexpected reply %v", res)
	}

	d := Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		Limit:   l.limit,
	}
	if !d.Allowed {
		// PTTL is negative when the key has no expiry; fall back to a full window.
		d.RetryAfter = l.window
		if res[2] > 0 {
			d.RetryAfter = time.Duration(res[2]) * time.Millisecond
		}
	}
	return d, nil
}
