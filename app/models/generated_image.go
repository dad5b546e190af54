package models

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
)

// DownloadTokenTTL is how long a generated image can be downloaded after creation.
const DownloadTokenTTL = 24 * time.Hour

type GeneratedImage struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	UUID                string         `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	UserID              uint           `gorm:"index;not null" json:"user_id"`
	Style               string         `gorm:"type:varchar(50);not null;default:'ghibli'" json:"style"`
	OriginalKey         string         `gorm:"type:varchar(255)" json:"-"`
	ImageKey            string         `gorm:"type:varchar(255);not null" json:"-"`
	PreviewKey          string         `gorm:"type:varchar(255)" json:"-"`
	ImageURL            string         `gorm:"type:varchar(1000)" json:"image_url"`
	PreviewURL          string         `gorm:"type:varchar(1000)" json:"preview_url"`
	Width               int            `json:"width"`
	Height              int            `json:"height"`
	DownloadTokenHash   string         `gorm:"type:varchar(64);index" json:"-"`
	DownloadTokenExpiry time.Time      `json:"download_token_expiry"`
	CreatedAt           time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// DownloadExpired reports whether the download token is no longer valid at now.
func (g *GeneratedImage) DownloadExpired(now time.Time) bool {
	return !now.Before(g.DownloadTokenExpiry)
}

// IssueDownloadToken generates a new download token, stores its digest and
// expiry on the struct and returns the raw token. Callers persist the struct.
func (g *GeneratedImage) IssueDownloadToken(now time.Time) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	g.DownloadTokenHash = HashDownloadToken(token)
	g.DownloadTokenExpiry = now.Add(DownloadTokenTTL)
	return token, nil
}

// CheckDownloadToken reports whether token matches and has not expired.
func (g *GeneratedImage) CheckDownloadToken(token string, now time.Time) bool {
	return g.MatchesDownloadToken(token) && !g.DownloadExpired(now)
}

// MatchesDownloadToken compares token against the stored digest, ignoring expiry.
func (g *GeneratedImage) MatchesDownloadToken(token string) bool {
	if token == "" || g.DownloadTokenHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashDownloadToken(token)), []byte(g.DownloadTokenHash)) == 1
}

func HashDownloadToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
