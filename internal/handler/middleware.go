package handler

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notedrop/internal/ratelimit"
	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

// BearerAuth rejects requests whose Authorization header does not carry token.
func BearerAuth(token string) fiber.Handler {
	expected := []byte(token)
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, bearerPrefix) {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		presented := []byte(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
		if len(expected) == 0 || subtle.ConstantTimeCompare(presented, expected) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		return c.Next()
	}
}

// RateLimit admits requests per client IP through limiter. A limiter error
// lets the request through so a Redis outage does not take the API down.
func RateLimit(limiter ratelimit.RateLimiter, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}

		allowed, err := limiter.Allow(c.Context(), c.IP())
		if err != nil {
			logger.Warn("rate limiter unavailable",
				zap.String("ip", c.IP()),
				zap.Error(err),
			)
			return c.Next()
		}
		if !allowed {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
		}
		return c.Next()
	}
}
