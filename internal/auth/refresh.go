package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/quill-dev/quill/internal/assert"
)

// RefreshCookieName is the name of the HTTP-only cookie carrying the refresh credential
const RefreshCookieName = "refreshToken"

// GenerateRefreshToken returns an opaque 256-bit refresh credential
func GenerateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	assert.Length("refresh token", token, 43)
	return token, nil
}

// HashRefreshToken returns the fingerprint stored in place of the raw credential
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	hash := hex.EncodeToString(sum[:])
	assert.Length("refresh token hash", hash, 64)
	return hash
}
