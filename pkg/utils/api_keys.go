package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const apiKeyPrefix = "pq_"

// GenerateRandomKey returns an operator API key carrying length random bytes.
func GenerateRandomKey(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
