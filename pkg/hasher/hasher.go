package hasher

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateToken returns length random bytes, hex encoded.
func GenerateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
