package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const tokenBytes = 32

// GenerateToken returns a new opaque bearer token: 32 bytes from crypto/rand,
// hex encoded. Tokens carry no structure and are never derived from user ids
// or wall-clock time.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// TokenDigest returns the hex SHA-256 of a raw token. Sessions are stored and
// looked up by this digest, so resolution is a direct keyed read. Passwords
// never go through this path; they use the adaptive hasher above.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
