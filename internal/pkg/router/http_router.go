package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tableops/tableops/app/controllers"
	"github.com/tableops/tableops/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", controllers.HandleHealth(h.deps.Health))

	// prometheus scrape endpoint
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// fiber monitor, only when credentials are configured
	if h.deps.MonitorUser != "" && h.deps.MonitorPassword != "" {
		app.Get("/monitor", basicauth.New(basicauth.Config{
			Users: map[string]string{
				h.deps.MonitorUser: h.deps.MonitorPassword,
			},
		}), monitor.New())
	}

	// Stripe webhooks
	app.All("/webhooks/stripe",
		middleware.AllowMethods(fiber.MethodPost),
		newLimiter(h.deps.LimiterStorage, h.deps.WebhookRateMax),
		h.deps.Billing.HandleStripeWebhook,
	)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
