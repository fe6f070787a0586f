// internal/service/images.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"

	"github.com/daveenci-ai/daveenci-ai-avatar/pkg/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GenerationClient produces image URLs from a prompt. Implemented by
// the replicate client; faked in tests.
type GenerationClient interface {
	Generate(ctx context.Context, modelRef, prompt string, params models.GenerationParams) ([]string, error)
}

// BlobStore persists image bytes durably. Implemented by the GitHub
// client. Delete of an already-absent file must succeed;
// DeleteFolderIfEmpty is best-effort and never fails the caller.
type BlobStore interface {
	Upload(ctx context.Context, sourceURL, prompt, avatarName, ext string) (string, error)
	Delete(ctx context.Context, fileURL string) error
	DeleteFolderIfEmpty(ctx context.Context, avatarName string)
}

// ImageService drives the staged → published/discarded review workflow.
type ImageService struct {
	db   *gorm.DB
	gen  GenerationClient
	blob BlobStore
}

func NewImageService(db *gorm.DB, gen GenerationClient, blob BlobStore) *ImageService {
	return &ImageService{db: db, gen: gen, blob: blob}
}

// EnhancePrompt prepends the avatar's trigger word unless the prompt
// already mentions it (case-insensitive). The fine-tune does not
// activate without its token.
func EnhancePrompt(prompt, triggerWord string) string {
	p := strings.TrimSpace(prompt)
	trigger := strings.TrimSpace(triggerWord)
	if trigger == "" {
		return p
	}
	if strings.Contains(strings.ToLower(p), strings.ToLower(trigger)) {
		return p
	}
	return trigger + " " + p
}

// GenerateImages runs one generation request end to end: validate,
// enhance the prompt, call the model, persist every output as a staged
// record. A failed blob upload degrades to the ephemeral upstream URL
// instead of failing the batch; a failed row insert after a successful
// upload deletes the orphaned blob and aborts (earlier rows stay
// staged and reviewable).
func (s *ImageService) GenerateImages(ctx context.Context, userID uint, req *models.GenerateImagesRequest) ([]models.GeneratedImage, error) {
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	avatar, err := s.visibleAvatar(ctx, userID, req.AvatarID)
	if err != nil {
		return nil, err
	}

	prompt := EnhancePrompt(req.Prompt, avatar.TriggerWord)
	log.Printf("🎨 [GENERATE] Avatar %q: %q (outputs=%d)", avatar.FullName, prompt, req.NumOutputs)

	outputs, err := s.gen.Generate(ctx, avatar.ReplicateModelURL, prompt, req.GenerationParams)
	if err != nil {
		return nil, fmt.Errorf("generate images: %w", err)
	}

	paramsJSON, err := json.Marshal(req.GenerationParams)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}

	images := make([]models.GeneratedImage, 0, len(outputs))
	for i, sourceURL := range outputs {
		storedURL := sourceURL
		durable := false
		blobURL, upErr := s.blob.Upload(ctx, sourceURL, prompt, avatar.FullName, req.OutputFormat)
		if upErr != nil {
			// Degrade, don't fail: the ephemeral URL still works for a while.
			log.Printf("⚠️ [GENERATE] Upload %d/%d failed for avatar %q, keeping ephemeral URL: %v",
				i+1, len(outputs), avatar.FullName, upErr)
		} else {
			storedURL = blobURL
			durable = true
		}

		img := models.GeneratedImage{
			AvatarID:   avatar.ID,
			Prompt:     prompt,
			URL:        storedURL,
			Durable:    durable,
			Status:     models.ImageStatusStaged,
			Parameters: datatypes.JSON(paramsJSON),
		}
		if err := s.db.WithContext(ctx).Create(&img).Error; err != nil {
			if durable {
				if delErr := s.blob.Delete(ctx, storedURL); delErr != nil {
					log.Printf("⚠️ [GENERATE] Compensating blob delete failed for %s: %v", storedURL, delErr)
				}
			}
			return nil, fmt.Errorf("record staged image: %w", err)
		}
		images = append(images, img)
	}

	log.Printf("✅ [GENERATE] Staged %d image(s) for avatar %q", len(images), avatar.FullName)
	return images, nil
}

// Pending lists the caller's review queue, newest first.
func (s *ImageService) Pending(ctx context.Context, userID uint) ([]models.GeneratedImage, error) {
	var images []models.GeneratedImage
	err := s.readableImages(ctx, userID).
		Where("generated_images.status = ?", models.ImageStatusStaged).
		Preload("Avatar").
		Order("generated_images.created_at DESC").
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("list pending images: %w", err)
	}
	return images, nil
}

// History pages through published images, newest first. Staged rows
// never appear here.
func (s *ImageService) History(ctx context.Context, userID uint, limit, offset int) ([]models.GeneratedImage, int64, error) {
	var total int64
	if err := s.readableImages(ctx, userID).
		Where("generated_images.status = ?", models.ImageStatusPublished).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	var images []models.GeneratedImage
	err := s.readableImages(ctx, userID).
		Where("generated_images.status = ?", models.ImageStatusPublished).
		Preload("Avatar").
		Order("generated_images.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&images).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	return images, total, nil
}

// Approve publishes a staged image. The URL is kept as-is, durable or
// not; no second upload happens here.
func (s *ImageService) Approve(ctx context.Context, userID, imageID uint) (*models.GeneratedImage, error) {
	img, err := s.imageForUser(ctx, userID, imageID)
	if err != nil {
		return nil, err
	}
	if img.Status != models.ImageStatusStaged {
		return nil, ErrNotPendingReview
	}

	img.Status = models.ImageStatusPublished
	if err := s.db.WithContext(ctx).Model(img).Update("status", models.ImageStatusPublished).Error; err != nil {
		return nil, fmt.Errorf("publish image: %w", err)
	}
	log.Printf("✅ [REVIEW] Image %d published (avatar %q)", img.ID, img.Avatar.FullName)
	return img, nil
}

// Reject discards a staged image: the blob goes first (when the record
// is durable), then the row. Afterwards the id does not exist.
func (s *ImageService) Reject(ctx context.Context, userID, imageID uint) error {
	img, err := s.imageForUser(ctx, userID, imageID)
	if err != nil {
		return err
	}
	if img.Status != models.ImageStatusStaged {
		return ErrNotPendingReview
	}

	if img.Durable {
		if err := s.blob.Delete(ctx, img.URL); err != nil {
			return fmt.Errorf("delete rejected blob: %w", err)
		}
	}
	if err := s.db.WithContext(ctx).Delete(&models.GeneratedImage{}, img.ID).Error; err != nil {
		return fmt.Errorf("delete image record: %w", err)
	}
	log.Printf("✅ [REVIEW] Image %d rejected and discarded", img.ID)
	return nil
}

// Download publishes the image (same transition as Approve) and hands
// back the URL plus a filename for the browser's save dialog.
func (s *ImageService) Download(ctx context.Context, userID, imageID uint) (*models.GeneratedImage, string, error) {
	img, err := s.Approve(ctx, userID, imageID)
	if err != nil {
		return nil, "", err
	}
	return img, downloadFilename(img.URL), nil
}

// DeletePublished removes a published image for good: blob, then row. When
// it was the avatar's last published image the folder cleanup probe fires.
func (s *ImageService) DeletePublished(ctx context.Context, userID, imageID uint) error {
	img, err := s.imageForUser(ctx, userID, imageID)
	if err != nil {
		return err
	}
	if img.Status != models.ImageStatusPublished {
		return ErrNotPublished
	}

	if img.Durable {
		if err := s.blob.Delete(ctx, img.URL); err != nil {
			return fmt.Errorf("delete published blob: %w", err)
		}
	}
	if err := s.db.WithContext(ctx).Delete(&models.GeneratedImage{}, img.ID).Error; err != nil {
		return fmt.Errorf("delete image record: %w", err)
	}

	var remaining int64
	if err := s.db.WithContext(ctx).Model(&models.GeneratedImage{}).
		Where("avatar_id = ? AND status = ?", img.AvatarID, models.ImageStatusPublished).
		Count(&remaining).Error; err != nil {
		return fmt.Errorf("count remaining images: %w", err)
	}
	if remaining == 0 && img.Avatar != nil {
		s.blob.DeleteFolderIfEmpty(ctx, img.Avatar.FullName)
	}
	log.Printf("✅ [REVIEW] Image %d deleted (%d published left for avatar %d)", img.ID, remaining, img.AvatarID)
	return nil
}

// readableImages scopes image queries to avatars userID may see.
func (s *ImageService) readableImages(ctx context.Context, userID uint) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.GeneratedImage{}).
		Joins("JOIN avatars ON avatars.id = generated_images.avatar_id").
		Joins("LEFT JOIN contacts ON contacts.id = avatars.contact_id").
		Where("avatars.contact_id IS NULL OR contacts.user_id = ?", userID)
}

// imageForUser loads an image with its avatar and applies the ownership
// rule. Missing and not-owned answer identically.
func (s *ImageService) imageForUser(ctx context.Context, userID, imageID uint) (*models.GeneratedImage, error) {
	var img models.GeneratedImage
	err := s.db.WithContext(ctx).
		Preload("Avatar").
		Preload("Avatar.Contact").
		First(&img, imageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	if img.Avatar == nil {
		return nil, ErrNotFound
	}
	if img.Avatar.ContactID != nil {
		if img.Avatar.Contact == nil || img.Avatar.Contact.UserID != userID {
			return nil, ErrNotFound
		}
	}
	return &img, nil
}

// visibleAvatar resolves an avatar for generation: it must exist, be
// visible, and be readable by the caller.
func (s *ImageService) visibleAvatar(ctx context.Context, userID, avatarID uint) (*models.Avatar, error) {
	var avatar models.Avatar
	err := s.db.WithContext(ctx).
		Preload("Contact").
		First(&avatar, avatarID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load avatar: %w", err)
	}
	if !avatar.Visible {
		return nil, ErrNotFound
	}
	if avatar.ContactID != nil {
		if avatar.Contact == nil || avatar.Contact.UserID != userID {
			return nil, ErrNotFound
		}
	}
	return &avatar, nil
}

// downloadFilename derives a save-as name from the stored URL.
func downloadFilename(fileURL string) string {
	u, err := url.Parse(fileURL)
	if err != nil || u.Path == "" {
		return "image.webp"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "image.webp"
	}
	return name
}
