// internal/transport/http/avatars.go
package http

import (
	"github.com/daveenci-ai/daveenci-ai-avatar/internal/middleware"
	"github.com/daveenci-ai/daveenci-ai-avatar/pkg/models"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) ListAvatars(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	avatars, err := h.avatars.List(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err, "avatar not found", "failed to fetch avatars")
	}
	return c.JSON(fiber.Map{"avatars": avatars})
}

func (h *Handler) CreateAvatar(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	var req models.AvatarRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	avatar, err := h.avatars.Create(c.Context(), userID, &req)
	if err != nil {
		return respondServiceError(c, err, "contact not found", "failed to create avatar")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"avatar": avatar})
}

func (h *Handler) GetAvatar(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}
	avatarID, err := c.ParamsInt("id")
	if err != nil || avatarID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid avatar id"})
	}

	avatar, err := h.avatars.Get(c.Context(), userID, uint(avatarID))
	if err != nil {
		return respondServiceError(c, err, "avatar not found", "failed to fetch avatar")
	}
	return c.JSON(fiber.Map{"avatar": avatar})
}

func (h *Handler) UpdateAvatar(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}
	avatarID, err := c.ParamsInt("id")
	if err != nil || avatarID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid avatar id"})
	}

	var req models.AvatarRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	avatar, err := h.avatars.Update(c.Context(), userID, uint(avatarID), &req)
	if err != nil {
		return respondServiceError(c, err, "avatar not found", "failed to update avatar")
	}
	return c.JSON(fiber.Map{"avatar": avatar})
}

func (h *Handler) DeleteAvatar(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}
	avatarID, err := c.ParamsInt("id")
	if err != nil || avatarID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid avatar id"})
	}

	if err := h.avatars.Delete(c.Context(), userID, uint(avatarID)); err != nil {
		return respondServiceError(c, err, "avatar not found", "failed to delete avatar")
	}
	return c.JSON(fiber.Map{"status": "success", "message": "avatar removed"})
}

func (h *Handler) ListContacts(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	contacts, err := h.avatars.ListContacts(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err, "contact not found", "failed to fetch contacts")
	}
	return c.JSON(fiber.Map{"contacts": contacts})
}

func (h *Handler) CreateContact(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	var req models.ContactRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	contact, err := h.avatars.CreateContact(c.Context(), userID, &req)
	if err != nil {
		return respondServiceError(c, err, "contact not found", "failed to create contact")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"contact": contact})
}
