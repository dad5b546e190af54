package repository

import (
	"github.com/ManuelReschke/Ghiblit/app/models"
	"gorm.io/gorm"
)

// imageRepository implements the ImageRepository interface
type imageRepository struct {
	db *gorm.DB
}

// NewImageRepository creates a new image repository instance
func NewImageRepository(db *gorm.DB) ImageRepository {
	return &imageRepository{db: db}
}

// Create creates a new generated image in the database
func (r *imageRepository) Create(image *models.GeneratedImage) error {
	return r.db.Create(image).Error
}

// GetByID retrieves an image by its ID
func (r *imageRepository) GetByID(id uint) (*models.GeneratedImage, error) {
	var image models.GeneratedImage
	err := r.db.First(&image, id).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// GetByIDForUser retrieves an image only if it belongs to userID
func (r *imageRepository) GetByIDForUser(id, userID uint) (*models.GeneratedImage, error) {
	var image models.GeneratedImage
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&image).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// GetByUserID retrieves images by user ID with pagination, newest first
func (r *imageRepository) GetByUserID(userID uint, offset, limit int) ([]models.GeneratedImage, error) {
	var images []models.GeneratedImage
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&images).Error
	return images, err
}

// GetRecent retrieves the most recent images across all users
func (r *imageRepository) GetRecent(limit int) ([]models.GeneratedImage, error) {
	var images []models.GeneratedImage
	err := r.db.Order("created_at DESC, id DESC").Limit(limit).Find(&images).Error
	return images, err
}

// Update updates an existing image
func (r *imageRepository) Update(image *models.GeneratedImage) error {
	return r.db.Save(image).Error
}

// Delete soft-deletes an image by ID
func (r *imageRepository) Delete(id uint) error {
	return r.db.Delete(&models.GeneratedImage{}, id).Error
}

// Count returns the total number of images
func (r *imageRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.GeneratedImage{}).Count(&count).Error
	return count, err
}

// CountByUserID returns the number of images a user generated
func (r *imageRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.GeneratedImage{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
