// internal/middleware/ratelimit.go
package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit caps requests per client IP per minute. Generation is the
// expensive call behind this cap, but the whole /api group shares it so
// a scripted client cannot hammer any endpoint.
func RateLimit(perMinute int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, slow down",
			})
		},
	})
}
