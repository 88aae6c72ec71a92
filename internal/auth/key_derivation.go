package auth

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DerivedKeyLength is 256 bits, the HMAC-SHA256 block-aligned key size.
const DerivedKeyLength = 32

const purposeSessionJWT = "agenda-session-jwt-v1"

var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives an independent key from the configured master secret using
// HKDF-SHA256 with purpose as the info parameter.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))
	key := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveSessionKey returns the key used to sign session tokens. Changing the
// master secret invalidates every outstanding token.
func DeriveSessionKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeSessionJWT)
}
