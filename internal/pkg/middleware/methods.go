package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AllowMethods answers 405 with an Allow header for any other method.
// Register it ahead of authentication middleware.
func AllowMethods(methods ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allowed[strings.ToUpper(m)] = struct{}{}
	}
	allowHeader := strings.Join(methods, ", ")

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[c.Method()]; ok {
			return c.Next()
		}
		c.Set(fiber.HeaderAllow, allowHeader)
		return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{"error": "method_not_allowed"})
	}
}
