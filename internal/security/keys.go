package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// ErrInvalidKey is returned when an encoded session key cannot be decoded.
var ErrInvalidKey = errors.New("invalid key")

// GenerateSessionKey returns n random bytes from crypto/rand.
func GenerateSessionKey(n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrInvalidKey
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeKey renders a session key as unpadded base64url for JSON and storage.
func EncodeKey(key []byte) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

// DecodeKey parses a base64url session key. Padded input is accepted.
func DecodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrInvalidKey
	}
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return b, nil
}

// KeyFingerprint returns a short hex digest identifying key in logs without exposing it.
func KeyFingerprint(key []byte) string {
	h := sha256.Sum256(key)
	return hex.EncodeToString(h[:6])
}
