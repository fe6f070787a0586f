// internal/service/avatars.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/daveenci-ai/daveenci-ai-avatar/internal/replicate"
	"github.com/daveenci-ai/daveenci-ai-avatar/pkg/models"

	"gorm.io/gorm"
)

// AvatarService owns avatar personas and the contacts they can be bound
// to. An avatar bound to a contact is private to that contact's user;
// an unbound avatar is readable by every authenticated user.
type AvatarService struct {
	db *gorm.DB
}

func NewAvatarService(db *gorm.DB) *AvatarService {
	return &AvatarService{db: db}
}

// readable scopes avatar queries to what userID may see.
func (s *AvatarService) readable(ctx context.Context, userID uint) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Avatar{}).
		Joins("LEFT JOIN contacts ON contacts.id = avatars.contact_id").
		Where("avatars.contact_id IS NULL OR contacts.user_id = ?", userID)
}

func (s *AvatarService) List(ctx context.Context, userID uint) ([]models.Avatar, error) {
	var avatars []models.Avatar
	err := s.readable(ctx, userID).
		Where("avatars.visible = ?", true).
		Preload("Contact").
		Order("avatars.created_at DESC").
		Find(&avatars).Error
	if err != nil {
		return nil, fmt.Errorf("list avatars: %w", err)
	}
	return avatars, nil
}

func (s *AvatarService) Get(ctx context.Context, userID, avatarID uint) (*models.Avatar, error) {
	var avatar models.Avatar
	err := s.readable(ctx, userID).
		Where("avatars.id = ? AND avatars.visible = ?", avatarID, true).
		Preload("Contact").
		First(&avatar).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load avatar: %w", err)
	}
	return &avatar, nil
}

func (s *AvatarService) Create(ctx context.Context, userID uint, req *models.AvatarRequest) (*models.Avatar, error) {
	if err := s.validateFields(req.FullName, req.TriggerWord, req.ReplicateModelURL); err != nil {
		return nil, err
	}
	if err := s.checkModelURLFree(ctx, req.ReplicateModelURL, 0); err != nil {
		return nil, err
	}
	if req.ContactID != nil {
		if err := s.checkContactOwned(ctx, userID, *req.ContactID); err != nil {
			return nil, err
		}
	}

	avatar := models.Avatar{
		FullName:          strings.TrimSpace(req.FullName),
		ReplicateModelURL: strings.TrimSpace(req.ReplicateModelURL),
		TriggerWord:       strings.TrimSpace(req.TriggerWord),
		Visible:           true,
		ContactID:         req.ContactID,
	}
	if req.Visible != nil {
		avatar.Visible = *req.Visible
	}
	if err := s.db.WithContext(ctx).Create(&avatar).Error; err != nil {
		return nil, fmt.Errorf("create avatar: %w", err)
	}
	log.Printf("✅ [AVATAR] Created avatar %d (%q, trigger %q)", avatar.ID, avatar.FullName, avatar.TriggerWord)
	return &avatar, nil
}

// Update applies a partial edit. Hidden avatars stay editable so they
// can be made visible again.
func (s *AvatarService) Update(ctx context.Context, userID, avatarID uint, req *models.AvatarRequest) (*models.Avatar, error) {
	var avatar models.Avatar
	err := s.readable(ctx, userID).
		Where("avatars.id = ?", avatarID).
		First(&avatar).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load avatar: %w", err)
	}

	if req.FullName != "" {
		avatar.FullName = strings.TrimSpace(req.FullName)
	}
	if req.TriggerWord != "" {
		avatar.TriggerWord = strings.TrimSpace(req.TriggerWord)
	}
	if req.ReplicateModelURL != "" {
		newURL := strings.TrimSpace(req.ReplicateModelURL)
		if newURL != avatar.ReplicateModelURL {
			if _, _, _, err := replicate.ParseModelRef(newURL); err != nil {
				return nil, models.NewValidationError("replicate_model_url", "replicate_model_url is not a valid model reference")
			}
			if err := s.checkModelURLFree(ctx, newURL, avatar.ID); err != nil {
				return nil, err
			}
			avatar.ReplicateModelURL = newURL
		}
	}
	if req.Visible != nil {
		avatar.Visible = *req.Visible
	}
	if req.ContactID != nil {
		if *req.ContactID == 0 {
			avatar.ContactID = nil
		} else {
			if err := s.checkContactOwned(ctx, userID, *req.ContactID); err != nil {
				return nil, err
			}
			avatar.ContactID = req.ContactID
		}
	}

	if err := s.db.WithContext(ctx).Save(&avatar).Error; err != nil {
		return nil, fmt.Errorf("save avatar: %w", err)
	}
	log.Printf("✅ [AVATAR] Updated avatar %d", avatar.ID)
	return &avatar, nil
}

// Delete soft-hides the avatar so its published history survives. Hard
// row deletes cascade to images at the schema level.
func (s *AvatarService) Delete(ctx context.Context, userID, avatarID uint) error {
	var avatar models.Avatar
	err := s.readable(ctx, userID).
		Where("avatars.id = ?", avatarID).
		First(&avatar).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load avatar: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&avatar).Update("visible", false).Error; err != nil {
		return fmt.Errorf("hide avatar: %w", err)
	}
	log.Printf("✅ [AVATAR] Hid avatar %d (%q)", avatar.ID, avatar.FullName)
	return nil
}

func (s *AvatarService) ListContacts(ctx context.Context, userID uint) ([]models.Contact, error) {
	var contacts []models.Contact
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name ASC").
		Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

func (s *AvatarService) CreateContact(ctx context.Context, userID uint, req *models.ContactRequest) (*models.Contact, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, models.NewValidationError("name", "name is required")
	}
	contact := models.Contact{
		UserID:       userID,
		Name:         strings.TrimSpace(req.Name),
		PrimaryEmail: strings.TrimSpace(req.PrimaryEmail),
		Phone:        strings.TrimSpace(req.Phone),
		Company:      strings.TrimSpace(req.Company),
	}
	if err := s.db.WithContext(ctx).Create(&contact).Error; err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	log.Printf("✅ [CONTACT] Created contact %d (%q)", contact.ID, contact.Name)
	return &contact, nil
}

func (s *AvatarService) validateFields(fullName, triggerWord, modelURL string) error {
	if strings.TrimSpace(fullName) == "" {
		return models.NewValidationError("full_name", "full_name is required")
	}
	if strings.TrimSpace(triggerWord) == "" {
		return models.NewValidationError("trigger_word", "trigger_word is required")
	}
	if strings.TrimSpace(modelURL) == "" {
		return models.NewValidationError("replicate_model_url", "replicate_model_url is required")
	}
	if _, _, _, err := replicate.ParseModelRef(modelURL); err != nil {
		return models.NewValidationError("replicate_model_url", "replicate_model_url is not a valid model reference")
	}
	return nil
}

// checkModelURLFree enforces the one-model-one-avatar rule.
func (s *AvatarService) checkModelURLFree(ctx context.Context, modelURL string, excludeID uint) error {
	var count int64
	q := s.db.WithContext(ctx).Model(&models.Avatar{}).
		Where("replicate_model_url = ?", strings.TrimSpace(modelURL))
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("check model url uniqueness: %w", err)
	}
	if count > 0 {
		return models.NewValidationError("replicate_model_url", "replicate_model_url is already bound to another avatar")
	}
	return nil
}

func (s *AvatarService) checkContactOwned(ctx context.Context, userID, contactID uint) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Contact{}).
		Where("id = ? AND user_id = ?", contactID, userID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check contact: %w", err)
	}
	if count == 0 {
		return models.NewValidationError("contact_id", "contact_id does not reference one of your contacts")
	}
	return nil
}
