package upload

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxImageBytes caps the size of an uploaded source image.
const MaxImageBytes = 10 << 20

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
	ErrEmpty           = errors.New("image is empty")
)

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
	".bmp":  true,
	// SVG is excluded: it is not a raster format the image API accepts
}

var allowedMime = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/bmp":  true,
}

// ValidateImageBySniff checks the provided filename (extension) and the first bytes (head)
// against a whitelist of image types. Returns detected mime or an error.
func ValidateImageBySniff(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: only JPG, JPEG, PNG, WEBP, GIF and BMP are supported", ErrUnsupportedType)
	}
	if len(head) == 0 {
		return "", ErrEmpty
	}

	detected := http.DetectContentType(head)

	// Block obvious scriptable types regardless of extension
	if strings.HasPrefix(detected, "text/") || strings.HasPrefix(detected, "application/xhtml") ||
		strings.HasPrefix(detected, "application/xml") || detected == "image/svg+xml" {
		return "", fmt.Errorf("%w: markup content is not allowed", ErrUnsupportedType)
	}

	if allowedMime[detected] {
		return detected, nil
	}
	return "", ErrUnsupportedType
}

// ValidateSize rejects empty and oversized uploads.
func ValidateSize(size int64) error {
	switch {
	case size <= 0:
		return ErrEmpty
	case size > MaxImageBytes:
		return fmt.Errorf("%w: maximum is %d MB", ErrTooLarge, MaxImageBytes>>20)
	}
	return nil
}
