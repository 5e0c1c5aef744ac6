package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/akarimov/payguard/pkg/errors"
)

func TestValidateUsername(t *testing.T) {
	v := New()

	assert.ErrorIs(t, v.ValidateUsername(""), errors.ErrMissingFields)
	assert.NoError(t, v.ValidateUsername("alice"))
	assert.NoError(t, v.ValidateUsername(strings.Repeat("a", 64)))
	assert.ErrorIs(t, v.ValidateUsername(strings.Repeat("a", 65)), errors.ErrInvalidUsername)
}

func TestValidatePassword(t *testing.T) {
	v := New()

	assert.ErrorIs(t, v.ValidatePassword(""), errors.ErrMissingFields)
	assert.ErrorIs(t, v.ValidatePassword("abcde"), errors.ErrWeakPassword)
	assert.NoError(t, v.ValidatePassword("abcdef"))
	assert.NoError(t, v.ValidatePassword(strings.Repeat("a", 128)))
	assert.ErrorIs(t, v.ValidatePassword(strings.Repeat("a", 129)), errors.ErrWeakPassword)
}

func TestSanitizeString(t *testing.T) {
	v := New()

	assert.Equal(t, "alice", v.SanitizeString("  alice  "))
	assert.Equal(t, "alice", v.SanitizeString("al\x00ice"))
	assert.Equal(t, "", v.SanitizeString("\x00"))
}
