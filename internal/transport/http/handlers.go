// internal/transport/http/handlers.go
package http

import (
	"errors"
	"log"
	"strconv"

	"github.com/daveenci-ai/daveenci-ai-avatar/internal/replicate"
	"github.com/daveenci-ai/daveenci-ai-avatar/internal/service"
	"github.com/daveenci-ai/daveenci-ai-avatar/pkg/models"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	users   *service.UserService
	avatars *service.AvatarService
	images  *service.ImageService
}

func NewHandler(users *service.UserService, avatars *service.AvatarService, images *service.ImageService) *Handler {
	return &Handler{users: users, avatars: avatars, images: images}
}

// respondServiceError maps service and adapter errors onto the JSON
// error envelope. notFound carries the resource wording for 404s,
// fallback the generic wording for anything unexpected.
func respondServiceError(c *fiber.Ctx, err error, notFound, fallback string) error {
	var vErr *models.ValidationError
	switch {
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": vErr.Message})
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": notFound})
	case errors.Is(err, service.ErrNotPendingReview), errors.Is(err, service.ErrNotPublished):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid email or password"})
	case errors.Is(err, replicate.ErrRateLimited):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "image service is busy, please try again shortly"})
	case errors.Is(err, replicate.ErrInvalidToken):
		log.Printf("🔥 [REPLICATE] API token rejected: %v", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "image generation credentials were rejected"})
	default:
		log.Printf("❌ %s: %v", fallback, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": fallback})
	}
}

// Helper
func getQueryInt(c *fiber.Ctx, key string, def, min, max int) int {
	s := c.Query(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
