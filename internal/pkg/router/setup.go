package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tableops/tableops/app/controllers"
)

// Router registers one group of routes.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers and settings the routers need.
type Dependencies struct {
	Billing *controllers.BillingController
	Cron    *controllers.CronController
	Health  map[string]controllers.HealthCheck

	CronSecret string
	// LimiterStorage backs the rate limiter; nil keeps counters in memory.
	LimiterStorage  fiber.Storage
	WebhookRateMax  int
	CronRateMax     int
	MonitorUser     string
	MonitorPassword string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
