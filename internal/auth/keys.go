// Package auth provides API key generation and hashing for CIForge.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// keyPrefix tags every generated secret so leaked keys are recognizable in
// logs and secret scanners.
const keyPrefix = "ci_"

// keyEntropyBytes gives 256 bits of entropy per secret.
const keyEntropyBytes = 32

// HashKey returns a SHA-256 hash of the key. This is the only form of the
// key ever persisted; GenerateKey's return value is shown to the caller
// exactly once and then discarded.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// GenerateKey returns a new plaintext API key secret in the form
// "ci_<url-safe base64>", carrying at least 240 bits of entropy, and its
// SHA-256 hash for storage. The plaintext is never retained by the caller
// beyond this call.
func GenerateKey() (plaintext string, hash string, err error) {
	buf := make([]byte, keyEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating API key entropy: %w", err)
	}
	plaintext = keyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return plaintext, HashKey(plaintext), nil
}
