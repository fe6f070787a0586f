// internal/service/users.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/daveenci-ai/daveenci-ai-avatar/internal/email"
	"github.com/daveenci-ai/daveenci-ai-avatar/pkg/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	sessionTokenTTL      = 7 * 24 * time.Hour
	verifyTokenTTL       = 48 * time.Hour
	verifyTokenPurpose   = "email_verify"
	minPasswordLength    = 8
	emailDeliveryTimeout = 2 * time.Minute
)

// UserService owns accounts: registration, login, email verification,
// profile updates and the dashboard stats.
type UserService struct {
	db         *gorm.DB
	mailer     *email.Sender
	jwtSecret  string
	appBaseURL string
}

func NewUserService(db *gorm.DB, mailer *email.Sender, jwtSecret, appBaseURL string) *UserService {
	return &UserService{
		db:         db,
		mailer:     mailer,
		jwtSecret:  jwtSecret,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
	}
}

func (s *UserService) Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResponse, error) {
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return nil, models.NewValidationError("email", "a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, models.NewValidationError("password", "password must be at least %d characters", minPasswordLength)
	}

	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", emailAddr).First(&existing).Error
	if err == nil {
		return nil, models.NewValidationError("email", "email is already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Email:    emailAddr,
		Password: string(hash),
		Name:     strings.TrimSpace(req.Name),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	token, err := s.issueSessionToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.sendVerificationAsync(user)
	log.Printf("✅ [AUTH] Registered user %d (%s)", user.ID, user.Email)
	return &models.AuthResponse{Token: token, User: user}, nil
}

// Login deliberately answers the same way for an unknown email and a
// wrong password.
func (s *UserService) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", emailAddr).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.issueSessionToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	log.Printf("✅ [AUTH] User %d logged in", user.ID)
	return &models.AuthResponse{Token: token, User: user}, nil
}

func (s *UserService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// UpdateProfile changes display name and/or email. An email change
// resets the validated flag and re-sends the verification mail.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, req *models.UpdateProfileRequest) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	emailChanged := false
	if req.Email != nil {
		newEmail := strings.ToLower(strings.TrimSpace(*req.Email))
		if newEmail == "" || !strings.Contains(newEmail, "@") {
			return nil, models.NewValidationError("email", "a valid email is required")
		}
		if newEmail != user.Email {
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.User{}).
				Where("email = ? AND id <> ?", newEmail, userID).
				Count(&count).Error; err != nil {
				return nil, fmt.Errorf("check email uniqueness: %w", err)
			}
			if count > 0 {
				return nil, models.NewValidationError("email", "email is already registered")
			}
			user.Email = newEmail
			user.Validated = false
			emailChanged = true
		}
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}

	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	if emailChanged {
		s.sendVerificationAsync(*user)
		log.Printf("🔄 [AUTH] User %d changed email, verification re-sent", user.ID)
	}
	return user, nil
}

// VerifyEmail consumes a purpose-scoped verification token. Verifying
// twice is harmless.
func (s *UserService) VerifyEmail(ctx context.Context, tokenStr string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return models.NewValidationError("token", "verification link is invalid or expired")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["purpose"] != verifyTokenPurpose {
		return models.NewValidationError("token", "verification link is invalid or expired")
	}
	rawID, ok := claims["user_id"].(float64)
	if !ok || rawID < 1 {
		return models.NewValidationError("token", "verification link is invalid or expired")
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", uint(rawID)).
		Update("validated", true)
	if res.Error != nil {
		return fmt.Errorf("mark validated: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	log.Printf("✅ [AUTH] Email verified for user %d", uint(rawID))
	return nil
}

// Stats aggregates the dashboard numbers over the user's readable
// avatars (owned via contact, or unowned).
func (s *UserService) Stats(ctx context.Context, userID uint) (*models.UserStats, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &models.UserStats{MemberSince: user.CreatedAt}

	if err := s.db.WithContext(ctx).Model(&models.Avatar{}).
		Joins("LEFT JOIN contacts ON contacts.id = avatars.contact_id").
		Where("avatars.visible = ?", true).
		Where("avatars.contact_id IS NULL OR contacts.user_id = ?", userID).
		Count(&stats.Avatars).Error; err != nil {
		return nil, fmt.Errorf("count avatars: %w", err)
	}

	imageCount := func(dest *int64, conds string, args ...interface{}) error {
		return s.db.WithContext(ctx).Model(&models.GeneratedImage{}).
			Joins("JOIN avatars ON avatars.id = generated_images.avatar_id").
			Joins("LEFT JOIN contacts ON contacts.id = avatars.contact_id").
			Where("avatars.contact_id IS NULL OR contacts.user_id = ?", userID).
			Where(conds, args...).
			Count(dest).Error
	}

	if err := imageCount(&stats.PublishedImages, "generated_images.status = ?", models.ImageStatusPublished); err != nil {
		return nil, fmt.Errorf("count published: %w", err)
	}
	if err := imageCount(&stats.PendingReview, "generated_images.status = ?", models.ImageStatusStaged); err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if err := imageCount(&stats.GeneratedThisMonth, "generated_images.created_at >= ?", monthStart); err != nil {
		return nil, fmt.Errorf("count this month: %w", err)
	}

	return stats, nil
}

func (s *UserService) issueSessionToken(userID uint) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(sessionTokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
}

func (s *UserService) verificationToken(userID uint) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"purpose": verifyTokenPurpose,
		"exp":     time.Now().Add(verifyTokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
}

// sendVerificationAsync fires the verification mail without blocking or
// failing the request. Registration succeeds even when mail is down.
func (s *UserService) sendVerificationAsync(user models.User) {
	if s.mailer == nil || !s.mailer.Enabled() {
		log.Printf("⚠️ [AUTH] Verification email skipped for %s (mailer disabled)", user.Email)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emailDeliveryTimeout)
		defer cancel()

		token, err := s.verificationToken(user.ID)
		if err != nil {
			log.Printf("⚠️ [AUTH] Could not build verification token for %s: %v", user.Email, err)
			return
		}
		verifyURL := fmt.Sprintf("%s/api/auth/verify?token=%s", s.appBaseURL, url.QueryEscape(token))
		if err := s.mailer.SendVerification(ctx, user.Email, user.Name, verifyURL); err != nil {
			log.Printf("⚠️ [AUTH] Verification email to %s failed: %v", user.Email, err)
		}
	}()
}
