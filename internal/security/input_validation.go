package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
)

// MaxKeyLength bounds license keys accepted from users and clients
const MaxKeyLength = 256

// NormalizeLicenseKey trims surrounding whitespace and rejects keys that
// are empty, oversized or contain control characters.
func NormalizeLicenseKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", apperrors.NewAppValidationError("license key is empty", apperrors.ErrEmptyKey)
	}

	if !utf8.ValidString(key) {
		return "", apperrors.NewAppValidationError("license key is not valid UTF-8", nil)
	}

	if utf8.RuneCountInString(key) > MaxKeyLength {
		return "", apperrors.NewAppValidationError("license key is too long", nil).
			WithContext("max_length", MaxKeyLength)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return "", apperrors.NewAppValidationError("license key contains control characters", nil)
		}
	}

	return key, nil
}

// MaskLicenseKey keeps the first and last four characters for logging
func MaskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// HashLicenseKey returns a short stable digest for correlating log lines
func HashLicenseKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}
