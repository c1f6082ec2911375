package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notedrop/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimit  int64 = 60
	defaultWindow       = time.Minute
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a fixed-window rate limiter shared by every API replica.
type RedisRateLimiter struct {
	client *goredis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
	script *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, prefix string, limit int, window time.Duration) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, prefix, int64(limit), window, time.Now)
}

func newRedisRateLimiter(
	client *goredis.Client,
	prefix string,
	limit int64,
	window time.Duration,
	nowFn func() time.Time,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if window < time.Second {
		window = defaultWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &RedisRateLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    nowFn,
		script: allowScript,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false, fmt.Errorf("rate limit key is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	windowSeconds := int64(r.window / time.Second)
	bucket := r.now().UTC().Unix() / windowSeconds
	redisKey := fmt.Sprintf("%s:%s:%d", r.prefix, normalizedKey, bucket)

	result, err := r.script.Run(ctx, r.client, []string{redisKey}, r.limit, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}
