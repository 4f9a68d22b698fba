package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Key and token sizes (in bytes before encoding).
const (
	// AppKeySize is the size of the per-handshake application key (AES-256).
	AppKeySize = 32
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// NewApplicationKey returns a fresh 256-bit AES key in standard base64. A new
// key is generated for every auth request and only lives as long as that
// exchange: it unwraps the SEK and is then dropped.
func NewApplicationKey() (string, error) {
	buf := make([]byte, AppKeySize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: failed to generate application key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// GenerateToken creates a cryptographically secure random token of the specified byte length.
// The token is returned as a base64url-encoded string (URL-safe, no padding).
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint returns a deterministic BLAKE2b-256 digest of data as lowercase
// hex (64 chars). It is safe to use in file names and cache keys.
func Fingerprint(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
