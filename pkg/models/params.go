// pkg/models/params.go
package models

import (
	"fmt"
	"strings"
)

// ValidationError reports a request field that failed validation. The
// message is safe to return to the client verbatim.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Aspect ratios and output formats accepted by the hosted flux fine-tunes.
var (
	validAspectRatios = map[string]bool{
		"1:1": true, "16:9": true, "9:16": true, "21:9": true, "9:21": true,
		"3:2": true, "2:3": true, "4:3": true, "3:4": true, "4:5": true, "5:4": true,
	}
	validOutputFormats = map[string]bool{"webp": true, "jpg": true, "png": true}
)

// GenerationParams is the tunable input bag forwarded to the model. The
// exact values used (after defaulting) are stored on every image record.
type GenerationParams struct {
	LoraScale         float64 `json:"lora_scale,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	NumOutputs        int     `json:"num_outputs,omitempty"`
	AspectRatio       string  `json:"aspect_ratio,omitempty"`
	OutputFormat      string  `json:"output_format,omitempty"`
	OutputQuality     int     `json:"output_quality,omitempty"`
	Seed              *int64  `json:"seed,omitempty"`
	GoFast            bool    `json:"go_fast,omitempty"`
}

// ApplyDefaults fills zero-valued fields before validation.
func (p *GenerationParams) ApplyDefaults() {
	if p.LoraScale == 0 {
		p.LoraScale = 1.0
	}
	if p.GuidanceScale == 0 {
		p.GuidanceScale = 3.5
	}
	if p.NumInferenceSteps == 0 {
		p.NumInferenceSteps = 28
	}
	if p.NumOutputs == 0 {
		p.NumOutputs = 1
	}
	if p.AspectRatio == "" {
		p.AspectRatio = "1:1"
	}
	if p.OutputFormat == "" {
		p.OutputFormat = "webp"
	}
	if p.OutputQuality == 0 {
		p.OutputQuality = 90
	}
}

// Validate range-checks every field. Callers apply defaults first; the
// checks run before any network call is made.
func (p *GenerationParams) Validate() error {
	if p.LoraScale < 0 || p.LoraScale > 3 {
		return NewValidationError("lora_scale", "lora_scale must be between 0 and 3")
	}
	if p.GuidanceScale < 1 || p.GuidanceScale > 20 {
		return NewValidationError("guidance_scale", "guidance_scale must be between 1 and 20")
	}
	if p.NumInferenceSteps < 1 || p.NumInferenceSteps > 50 {
		return NewValidationError("num_inference_steps", "num_inference_steps must be between 1 and 50")
	}
	if p.NumOutputs < 1 || p.NumOutputs > 4 {
		return NewValidationError("num_outputs", "num_outputs must be between 1 and 4")
	}
	if !validAspectRatios[p.AspectRatio] {
		return NewValidationError("aspect_ratio", "aspect_ratio %q is not supported", p.AspectRatio)
	}
	if !validOutputFormats[p.OutputFormat] {
		return NewValidationError("output_format", "output_format must be webp, jpg or png")
	}
	if p.OutputQuality < 1 || p.OutputQuality > 100 {
		return NewValidationError("output_quality", "output_quality must be between 1 and 100")
	}
	return nil
}

// GenerateImagesRequest is the API input for a generation run.
type GenerateImagesRequest struct {
	AvatarID uint   `json:"avatar_id"`
	Prompt   string `json:"prompt"`
	GenerationParams
}

func (r *GenerateImagesRequest) Validate() error {
	if r.AvatarID == 0 {
		return NewValidationError("avatar_id", "avatar_id is required")
	}
	prompt := strings.TrimSpace(r.Prompt)
	if len(prompt) < 3 {
		return NewValidationError("prompt", "prompt must be at least 3 characters")
	}
	if len(prompt) > 1000 {
		return NewValidationError("prompt", "prompt must be at most 1000 characters")
	}
	return r.GenerationParams.Validate()
}
