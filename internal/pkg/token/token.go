package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewAPIKey generates a cryptographically random 64-character hex key.
func NewAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
