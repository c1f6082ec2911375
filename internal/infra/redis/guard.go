package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notedrop/internal/idempotency"
	goredis "github.com/redis/go-redis/v9"
)

const guardKeyPrefix = "idem:"

var _ idempotency.Guard = (*RedisGuard)(nil)

// RedisGuard reserves idempotency keys with a single SET NX EX so the marker
// can never exist without its expiry.
type RedisGuard struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *goredis.Client, ttl time.Duration) (*RedisGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}

	return &RedisGuard{client: client, ttl: ttl}, nil
}

func (g *RedisGuard) Reserve(ctx context.Context, key string) (bool, error) {
	if g == nil || g.client == nil {
		return false, fmt.Errorf("idempotency guard is not initialized")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("idempotency key is required")
	}

	reserved, err := g.client.SetNX(ctx, guardKeyPrefix+key, "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return reserved, nil
}
