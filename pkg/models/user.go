// pkg/models/user.go
package models

import (
	"time"
)

// User is a registered account. Users are never hard-deleted.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"type:varchar(255);not null"`
	Name      string    `json:"name" gorm:"type:varchar(100)"`
	Validated bool      `json:"validated" gorm:"not null;default:false"` // set by the email verification link
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contact is a CRM record. An avatar bound to a contact belongs to that
// contact's user; avatars without a contact are readable by every
// authenticated user.
type Contact struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UserID       uint      `json:"user_id" gorm:"index;not null"`
	Name         string    `json:"name" gorm:"type:varchar(150);not null"`
	PrimaryEmail string    `json:"primary_email,omitempty" gorm:"type:varchar(255)"`
	Phone        string    `json:"phone,omitempty" gorm:"type:varchar(50)"`
	Company      string    `json:"company,omitempty" gorm:"type:varchar(150)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// --- API payloads ---

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type UpdateProfileRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type ContactRequest struct {
	Name         string `json:"name"`
	PrimaryEmail string `json:"primary_email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Company      string `json:"company,omitempty"`
}

// UserStats feeds the dashboard header.
type UserStats struct {
	Avatars            int64     `json:"avatars"`
	PublishedImages    int64     `json:"published_images"`
	PendingReview      int64     `json:"pending_review"`
	GeneratedThisMonth int64     `json:"generated_this_month"`
	MemberSince        time.Time `json:"member_since"`
}
