package repository

import (
	"github.com/ManuelReschke/Ghiblit/app/models"
	"gorm.io/gorm"
)

type stylePromptRepository struct {
	db *gorm.DB
}

// NewStylePromptRepository creates a new style prompt repository instance
func NewStylePromptRepository(db *gorm.DB) StylePromptRepository {
	return &stylePromptRepository{db: db}
}

// GetActive returns the active override for style
func (r *stylePromptRepository) GetActive(style string) (*models.StylePrompt, error) {
	var p models.StylePrompt
	err := r.db.Where("style = ? AND is_active = ?", style, true).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *stylePromptRepository) ListActive() ([]models.StylePrompt, error) {
	var prompts []models.StylePrompt
	err := r.db.Where("is_active = ?", true).Order("style ASC").Find(&prompts).Error
	return prompts, err
}
