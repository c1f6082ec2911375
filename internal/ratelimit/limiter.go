package ratelimit

import "context"

// RateLimiter admits at most a fixed number of requests per key within one window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
