package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/tableops/tableops/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")

	// Cron sweeps, triggered by an external scheduler
	cron := api.Group("/cron",
		middleware.AllowMethods(fiber.MethodGet),
		newLimiter(h.deps.LimiterStorage, h.deps.CronRateMax),
		middleware.CronSecretMiddleware(h.deps.CronSecret),
	)
	cron.Get("/trial-expiring", h.deps.Cron.HandleTrialExpiring)
	cron.Get("/trial-expired", h.deps.Cron.HandleTrialExpired)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func newLimiter(storage fiber.Storage, max int) fiber.Handler {
	if max <= 0 {
		max = 60
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		Storage:    storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
		},
	})
}
