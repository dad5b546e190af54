package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// UserProfile carries the credit balance of a user. The balance is only changed
// through the credits ledger, never by assigning CreditBalance and saving.
type UserProfile struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"uniqueIndex" json:"user_id"`
	CreditBalance      int       `gorm:"not null;default:0;check:chk_user_profiles_credit_balance,credit_balance >= 0" json:"credit_balance"`
	IntroOfferRedeemed bool      `gorm:"not null;default:false" json:"intro_offer_redeemed"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// GetOrCreateUserProfile returns the existing profile or creates one holding
// initialCredits. The second return value is true when the profile was created.
func GetOrCreateUserProfile(db *gorm.DB, userID uint, initialCredits int) (*UserProfile, bool, error) {
	var p UserProfile
	err := db.Where("user_id = ?", userID).First(&p).Error
	if err == nil {
		return &p, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	if initialCredits < 0 {
		initialCredits = 0
	}
	p = UserProfile{UserID: userID, CreditBalance: initialCredits}
	if err := db.Create(&p).Error; err != nil {
		return nil, false, err
	}
	return &p, true, nil
}
