package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readinessTimeout = 2 * time.Second

// Pinger is one readiness dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

func RegisterHealthRoutes(app fiber.Router, postgres Pinger, redis Pinger) {
	app.Get("/health", HealthHandler())
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(postgres, redis))
}

func HealthHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ok": true,
		})
	}
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(postgres Pinger, redis Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		pgStatus := checkStatus(ctx, postgres)
		redisStatus := checkStatus(ctx, redis)

		status := "ready"
		statusCode := fiber.StatusOK
		if pgStatus != "ok" || redisStatus != "ok" {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"postgres": pgStatus,
				"redis":    redisStatus,
			},
		})
	}
}

func checkStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "down"
	}
	if err := p.Ping(ctx); err != nil {
		return "down"
	}
	return "ok"
}
