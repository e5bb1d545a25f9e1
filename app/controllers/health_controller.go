package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HandleHealth runs every check with a short timeout and answers 503 when
// one fails.
func HandleHealth(checks map[string]HealthCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := fiber.Map{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				log.Warnf("[Health] %s check failed: %v", name, err)
				status[name] = "down"
				healthy = false
				continue
			}
			status[name] = "up"
		}

		code := fiber.StatusOK
		if !healthy {
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{"ok": healthy, "checks": status})
	}
}
