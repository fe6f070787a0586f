// internal/transport/http/images.go
package http

import (
	"log"

	"github.com/daveenci-ai/daveenci-ai-avatar/internal/middleware"
	"github.com/daveenci-ai/daveenci-ai-avatar/pkg/models"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) GenerateImages(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	var req models.GenerateImagesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	log.Printf("📬 [GENERATE REQUEST] User: %d | Avatar: %d | Outputs: %d", userID, req.AvatarID, req.NumOutputs)

	images, err := h.images.GenerateImages(c.Context(), userID, &req)
	if err != nil {
		return respondServiceError(c, err, "avatar not found", "failed to generate images")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"images": images,
		"count":  len(images),
	})
}

func (h *Handler) GetPendingImages(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	images, err := h.images.Pending(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err, "image not found", "failed to fetch pending images")
	}
	return c.JSON(fiber.Map{"images": images})
}

func (h *Handler) GetHistory(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}
	limit := getQueryInt(c, "limit", 20, 1, 100)
	offset := getQueryInt(c, "offset", 0, 0, 10000)

	images, total, err := h.images.History(c.Context(), userID, limit, offset)
	if err != nil {
		return respondServiceError(c, err, "image not found", "failed to fetch history")
	}
	return c.JSON(fiber.Map{
		"images": images,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) LikeImage(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}
	imageID, err := c.ParamsInt("id")
	if err != nil || imageID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid image id"})
	}

	img, err := h.images.Approve(c.Context(), userID, uint(imageID))
	if err != nil {
		return respondServiceError(c, err, "image not found", "failed to approve image")
	}
	return c.JSON(fiber.Map{"status": "success", "image": img})
}

func (h *Handler) DislikeImage(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}
	imageID, err := c.ParamsInt("id")
	if err != nil || imageID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid image id"})
	}

	if err := h.images.Reject(c.Context(), userID, uint(imageID)); err != nil {
		return respondServiceError(c, err, "image not found", "failed to discard image")
	}
	return c.JSON(fiber.Map{"status": "success", "message": "image discarded"})
}

func (h *Handler) DownloadImage(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}
	imageID, err := c.ParamsInt("id")
	if err != nil || imageID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid image id"})
	}

	img, filename, err := h.images.Download(c.Context(), userID, uint(imageID))
	if err != nil {
		return respondServiceError(c, err, "image not found", "failed to prepare download")
	}
	return c.JSON(fiber.Map{"url": img.URL, "filename": filename})
}

func (h *Handler) DeleteImage(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}
	imageID, err := c.ParamsInt("id")
	if err != nil || imageID < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid image id"})
	}

	if err := h.images.DeletePublished(c.Context(), userID, uint(imageID)); err != nil {
		return respondServiceError(c, err, "image not found", "failed to delete image")
	}
	return c.JSON(fiber.Map{"status": "success", "message": "image deleted"})
}
