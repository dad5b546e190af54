package shortener

import (
	"crypto/rand"
	"fmt"
)

const (
	// Base62: 0-9, a-z, A-Z
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// Base36 for case-insensitive identifiers such as usernames.
	lowerAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateSecureSlug creates a cryptographically secure random Base62 slug.
func GenerateSecureSlug(length int) (string, error) {
	return generate(alphabet, length)
}

// GenerateLowerSlug creates a cryptographically secure random Base36 slug.
func GenerateLowerSlug(length int) (string, error) {
	return generate(lowerAlphabet, length)
}

func generate(chars string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid slug length: %d", length)
	}

	// Rejection sampling to avoid modulo bias: only bytes below the largest
	// multiple of len(chars) are used.
	maxRandomByte := 256 - 256%len(chars)

	slug := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if int(b) >= maxRandomByte {
				continue
			}
			slug[written] = chars[int(b)%len(chars)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(slug), nil
}
