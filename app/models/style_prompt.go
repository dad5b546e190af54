package models

import "time"

// StylePrompt overrides the built-in prompt for a style when present and active.
type StylePrompt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Style     string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"style"`
	Prompt    string    `gorm:"type:text;not null" json:"prompt"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
