package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// sessionIDPrefix tags session ids so they are recognizable in logs.
const sessionIDPrefix = "rst_"

// GenerateSessionID returns an opaque session id with 256 bits of entropy.
func GenerateSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return sessionIDPrefix + hex.EncodeToString(buf), nil
}
