package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tableops/tableops/app/controllers"
	"github.com/tableops/tableops/app/repository"
	"github.com/tableops/tableops/internal/pkg/billing"
)

func newTestApp(deps Dependencies) *fiber.App {
	repos := &repository.Repositories{}
	reconciler := billing.NewReconciler(repos, nil, nil)
	dispatcher := billing.NewDispatcher(repos, nil, nil)

	deps.Billing = controllers.NewBillingController(billing.NewWebhookProcessor("whsec_router", nil, reconciler, dispatcher, nil))
	deps.Cron = controllers.NewCronController(billing.NewSweeper(nil, reconciler, dispatcher, 1, nil))
	deps.Health = map[string]controllers.HealthCheck{"db": func(context.Context) error { return nil }}

	app := fiber.New()
	InstallRouter(app, deps)
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestRoutes(t *testing.T) {
	app := newTestApp(Dependencies{CronSecret: "s3cret"})

	assert.Equal(t, http.StatusOK, do(t, app, httptest.NewRequest(fiber.MethodGet, "/healthz", nil)).StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, app, httptest.NewRequest(fiber.MethodGet, "/webhooks/stripe", nil)).StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, app, httptest.NewRequest(fiber.MethodPost, "/webhooks/stripe", nil)).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, app, httptest.NewRequest(fiber.MethodGet, "/api/cron/trial-expired", nil)).StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, app, httptest.NewRequest(fiber.MethodPost, "/api/cron/trial-expiring", nil)).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, app, httptest.NewRequest(fiber.MethodGet, "/monitor", nil)).StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(Dependencies{})

	resp := do(t, app, httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMonitorRequiresBasicAuth(t *testing.T) {
	app := newTestApp(Dependencies{MonitorUser: "ops", MonitorPassword: "pw"})

	assert.Equal(t, http.StatusUnauthorized, do(t, app, httptest.NewRequest(fiber.MethodGet, "/monitor", nil)).StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/monitor", nil)
	req.SetBasicAuth("ops", "pw")
	assert.Equal(t, http.StatusOK, do(t, app, req).StatusCode)
}

func TestCronRateLimit(t *testing.T) {
	app := newTestApp(Dependencies{CronSecret: "s3cret", CronRateMax: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, app, httptest.NewRequest(fiber.MethodGet, "/api/cron/trial-expired", nil)).StatusCode)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}
