package security

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies staff PINs using bcrypt. Callers must not log or
// persist plaintext PINs.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to 4–31.
// Zero selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	cost = max(cost, bcrypt.MinCost)
	cost = min(cost, bcrypt.MaxCost)
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of pin suitable for storage.
func (h *Hasher) Hash(pin []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(pin, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies pin against the stored hash. Returns nil on match and
// bcrypt.ErrMismatchedHashAndPassword (or a hash format error) otherwise.
func (h *Hasher) Compare(hash string, pin []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), pin)
}
