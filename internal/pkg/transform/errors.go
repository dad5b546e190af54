package transform

import "errors"

var (
	ErrInvalidImage     = errors.New("invalid image")
	ErrImageNotFound    = errors.New("image not found")
	ErrTokenRequired    = errors.New("download token required")
	ErrTokenExpired     = errors.New("download token expired")
	ErrGenerationFailed = errors.New("image generation failed")
)
