package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes. Each purpose gets an independent key derived from the
// shared secret so a value signed for one use never verifies for another.
const (
	PurposeAuthToken = "cdsso/auth-token"
	PurposeSession   = "cdsso/session"
	PurposeCSRF      = "cdsso/csrf"
)

// MinSecretLength is the shortest shared secret accepted.
const MinSecretLength = 32

// DeriveKey derives a 32-byte key for purpose from secret using HKDF-SHA256.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if purpose == "" {
		return nil, fmt.Errorf("key purpose is required")
	}

	r := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", purpose, err)
	}
	return key, nil
}
