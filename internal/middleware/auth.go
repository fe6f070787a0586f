// internal/middleware/auth.go
package middleware

import (
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Context key for the authenticated user (Fiber Locals).
const UserIDContextKey = "userID"

// RequireAuth validates the Authorization bearer token and injects the
// user id into the request context. Every /api route behind it answers
// 401 without a valid token.
func RequireAuth(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing bearer token",
			})
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			log.Printf("[AUTH] ❌ REJECTED | IP=%s | Path=%s | %v", c.IP(), c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token claims",
			})
		}
		// JSON numbers decode as float64.
		rawID, ok := claims["user_id"].(float64)
		if !ok || rawID < 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token claims",
			})
		}

		c.Locals(UserIDContextKey, uint(rawID))
		return c.Next()
	}
}

// GetUserIDFromContext retrieves the authenticated user id set by
// RequireAuth.
func GetUserIDFromContext(c *fiber.Ctx) (uint, bool) {
	value := c.Locals(UserIDContextKey)
	userID, ok := value.(uint)
	return userID, ok
}
