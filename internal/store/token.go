package store

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// tokenBytes is the entropy behind each share token string. 24 bytes keeps
// the capability unguessable while the base58 form stays short enough to
// paste into a URL.
const tokenBytes = 24

// NewTokenString generates the opaque capability string for a share token.
func NewTokenString() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base58.Encode(buf), nil
}
