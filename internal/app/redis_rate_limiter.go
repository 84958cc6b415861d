package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var writeRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter is a fixed-window counter shared by every replica.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "roundup:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: trimmedPrefix}
}

// ConsumeRateLimit counts one hit for subject in scope and returns the count in the
// current window plus the seconds until the window resets. A nil limiter, a
// non-positive limit or an empty subject never limits.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	key, ok := r.key(scope, subject)
	if !ok || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	windowMs := max(window.Milliseconds(), 1000)

	reply, err := writeRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(reply) != 2 {
		return 0, 0, fmt.Errorf("rate limiter: expected [count ttl], got %d values", len(reply))
	}

	ttlMs := reply[1]
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	return int(reply[0]), max(int(math.Ceil(float64(ttlMs)/1000)), 1), nil
}

func (r *RedisRateLimiter) key(scope, subject string) (string, bool) {
	if r == nil || r.client == nil {
		return "", false
	}
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return "", false
	}
	return r.prefix + ":" + scope + ":" + strings.ToLower(subject), true
}
