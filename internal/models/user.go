package models

import (
	"time"

	"github.com/google/uuid"
)

// Preferences are the learning preferences that gate some badges.
type Preferences struct {
	UserID        uuid.UUID `json:"user_id"`
	LearningStyle string    `json:"learning_style"` // "visual" | "auditory" | "reading" | "kinesthetic"
	Pace          string    `json:"pace"`           // "relaxed" | "moderate" | "intensive"
	DetailLevel   string    `json:"detail_level"`   // "concise" | "balanced" | "comprehensive"
	UpdatedAt     time.Time `json:"updated_at"`
}

// Value returns the preference stored under key, or "".
func (p *Preferences) Value(key PreferenceKey) string {
	if p == nil {
		return ""
	}
	switch key {
	case PreferenceLearningStyle:
		return p.LearningStyle
	case PreferencePace:
		return p.Pace
	case PreferenceDetailLevel:
		return p.DetailLevel
	}
	return ""
}

type UpdatePreferencesRequest struct {
	LearningStyle *string `json:"learning_style"`
	Pace          *string `json:"pace"`
	DetailLevel   *string `json:"detail_level"`
}
