// internal/transport/http/auth.go
package http

import (
	"github.com/daveenci-ai/daveenci-ai-avatar/internal/middleware"
	"github.com/daveenci-ai/daveenci-ai-avatar/pkg/models"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	resp, err := h.users.Register(c.Context(), &req)
	if err != nil {
		return respondServiceError(c, err, "user not found", "failed to register")
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	resp, err := h.users.Login(c.Context(), &req)
	if err != nil {
		return respondServiceError(c, err, "user not found", "failed to log in")
	}
	return c.JSON(resp)
}

func (h *Handler) VerifyEmail(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token required"})
	}

	if err := h.users.VerifyEmail(c.Context(), token); err != nil {
		return respondServiceError(c, err, "user not found", "failed to verify email")
	}
	return c.JSON(fiber.Map{"status": "success", "message": "Email verified"})
}

func (h *Handler) Me(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	user, err := h.users.GetUser(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err, "user not found", "failed to fetch profile")
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	var req models.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	user, err := h.users.UpdateProfile(c.Context(), userID, &req)
	if err != nil {
		return respondServiceError(c, err, "user not found", "failed to update profile")
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *Handler) GetStats(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	stats, err := h.users.Stats(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err, "user not found", "failed to fetch stats")
	}
	return c.JSON(stats)
}
