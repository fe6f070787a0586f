// pkg/models/avatar.go
package models

import (
	"time"
)

// Avatar is a named persona bound to exactly one fine-tuned generation
// model. The model reference is globally unique; two avatars never share
// a model. Visible=false hides the avatar without touching its history.
type Avatar struct {
	ID                uint             `json:"id" gorm:"primaryKey"`
	FullName          string           `json:"full_name" gorm:"type:varchar(150);not null"`
	ReplicateModelURL string           `json:"replicate_model_url" gorm:"type:varchar(500);uniqueIndex;not null"`
	TriggerWord       string           `json:"trigger_word" gorm:"type:varchar(100);not null"`
	Visible           bool             `json:"visible" gorm:"not null;default:true"`
	ContactID         *uint            `json:"contact_id,omitempty" gorm:"index"`
	Contact           *Contact         `json:"contact,omitempty" gorm:"constraint:OnDelete:SET NULL"`
	Images            []GeneratedImage `json:"-" gorm:"foreignKey:AvatarID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// AvatarRequest is the create/update payload. Nil pointer fields are
// left unchanged on update.
type AvatarRequest struct {
	FullName          string `json:"full_name"`
	ReplicateModelURL string `json:"replicate_model_url"`
	TriggerWord       string `json:"trigger_word"`
	Visible           *bool  `json:"visible,omitempty"`
	ContactID         *uint  `json:"contact_id,omitempty"`
}
