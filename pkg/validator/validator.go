package validator

import (
	"strings"

	"github.com/akarimov/payguard/pkg/errors"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 128
	maxUsernameLength = 64
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateUsername checks that a username is present and within bounds.
// Usernames are case-sensitive and matched exactly; no normalization beyond
// trimming happens here.
func (v *Validator) ValidateUsername(username string) error {
	if username == "" {
		return errors.ErrMissingFields
	}

	if len(username) > maxUsernameLength {
		return errors.ErrInvalidUsername
	}

	return nil
}

// ValidatePassword checks password strength
func (v *Validator) ValidatePassword(password string) error {
	if password == "" {
		return errors.ErrMissingFields
	}

	if len(password) < minPasswordLength {
		return errors.ErrWeakPassword
	}

	if len(password) > maxPasswordLength {
		return errors.ErrWeakPassword
	}

	return nil
}

// SanitizeString removes dangerous characters and null bytes
func (v *Validator) SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Trim whitespace
	input = strings.TrimSpace(input)

	return input
}
