package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"
	"github.com/tableops/tableops/internal/pkg/env"
)

// limiterDatabase keeps rate limiter counters apart from webhook claims in DB 0.
const limiterDatabase = 1

// NewLimiterStorage returns a Fiber storage on the same Redis server as the
// cache client, for the rate limiter middleware.
func NewLimiterStorage() fiber.Storage {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnvInt("CACHE_PORT", 6379)
	password := env.GetEnv("CACHE_PASSWORD", "")

	if client != nil {
		addr := client.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
