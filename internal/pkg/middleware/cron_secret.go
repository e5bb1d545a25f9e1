package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// CronSecretMiddleware guards the cron endpoints with a shared bearer secret.
// An empty secret rejects every request.
func CronSecretMiddleware(secret string) fiber.Handler {
	secret = strings.TrimSpace(secret)
	return func(c *fiber.Ctx) error {
		if secret == "" {
			log.Error("[Cron] CRON_SECRET is not configured, refusing request")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Cron secret not configured"})
		}

		token := extractBearerToken(c)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			log.Warnf("[Cron] Unauthorized request to %s from %s", c.Path(), c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
		}

		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
