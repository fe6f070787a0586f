// pkg/models/image.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

// ImageStatus is the review lifecycle of a generated image. Staged rows
// form the review queue, published rows the permanent gallery. A
// discarded image has no row at all.
type ImageStatus string

const (
	ImageStatusStaged    ImageStatus = "staged"
	ImageStatusPublished ImageStatus = "published"
)

// GeneratedImage is one output of a generation run. URL points at blob
// storage when Durable is true, otherwise at the short-lived upstream
// output (a degraded upload that is kept rather than lost). Publishing
// flips Status and never rewrites URL.
type GeneratedImage struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	AvatarID   uint           `json:"avatar_id" gorm:"index;not null"`
	Avatar     *Avatar        `json:"avatar,omitempty"`
	Prompt     string         `json:"prompt" gorm:"type:text;not null"` // the enhanced prompt actually sent upstream
	URL        string         `json:"url" gorm:"type:varchar(1000);not null"`
	Durable    bool           `json:"durable" gorm:"not null;default:false"`
	Status     ImageStatus    `json:"status" gorm:"type:varchar(20);not null;default:'staged';index"`
	Parameters datatypes.JSON `json:"parameters,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
