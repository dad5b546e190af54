package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// GetGravatarURL returns the Gravatar image for email. Unknown addresses get
// the generic silhouette. Default size is 200px.
func GetGravatarURL(email string, size int) string {
	if size <= 0 {
		size = 200
	}
	email = strings.ToLower(strings.TrimSpace(email))
	hash := md5.Sum([]byte(email))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?s=%d&d=mp", hash, size)
}
