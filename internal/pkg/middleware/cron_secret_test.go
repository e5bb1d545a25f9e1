package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCronApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/api/cron/run", CronSecretMiddleware(secret), func(c *fiber.Ctx) error {
		return c.SendString("ran")
	})
	return app
}

func TestCronSecretMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{name: "unset secret fails closed", secret: "", header: "Bearer anything", want: fiber.StatusInternalServerError},
		{name: "missing header", secret: "s3cret", header: "", want: fiber.StatusUnauthorized},
		{name: "wrong secret", secret: "s3cret", header: "Bearer nope", want: fiber.StatusUnauthorized},
		{name: "wrong scheme", secret: "s3cret", header: "Basic s3cret", want: fiber.StatusUnauthorized},
		{name: "prefix of secret", secret: "s3cret", header: "Bearer s3c", want: fiber.StatusUnauthorized},
		{name: "valid", secret: "s3cret", header: "Bearer s3cret", want: fiber.StatusOK},
		{name: "scheme is case insensitive", secret: "s3cret", header: "bearer s3cret", want: fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/api/cron/run", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := newCronApp(tt.secret).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
