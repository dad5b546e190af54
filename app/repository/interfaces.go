package repository

import (
	"time"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	CreateWithProfile(user *models.User, initialCredits int) (*models.UserProfile, error)
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByProvider(provider, providerUserID string) (*models.User, error)
	LinkProvider(account *models.ProviderAccount) error
	GetProfile(userID uint) (*models.UserProfile, error)
	TouchLastLogin(userID uint, at time.Time) error
	UsernameExists(username string) (bool, error)
	Count() (int64, error)
}

// ImageRepository defines the interface for generated image database operations
type ImageRepository interface {
	Create(image *models.GeneratedImage) error
	GetByID(id uint) (*models.GeneratedImage, error)
	GetByIDForUser(id, userID uint) (*models.GeneratedImage, error)
	GetByUserID(userID uint, offset, limit int) ([]models.GeneratedImage, error)
	GetRecent(limit int) ([]models.GeneratedImage, error)
	Update(image *models.GeneratedImage) error
	Delete(id uint) error
	Count() (int64, error)
	CountByUserID(userID uint) (int64, error)
}

// StylePromptRepository defines the interface for style prompt overrides
type StylePromptRepository interface {
	GetActive(style string) (*models.StylePrompt, error)
	ListActive() ([]models.StylePrompt, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User        UserRepository
	Image       ImageRepository
	StylePrompt StylePromptRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:        NewUserRepository(db),
		Image:       NewImageRepository(db),
		StylePrompt: NewStylePromptRepository(db),
	}
}
