package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultKeyBytes is the session key length used when a Signer has none configured.
const DefaultKeyBytes = 32

// Signer mints rotating tokens. It has no state beyond its settings and is safe
// for concurrent use.
type Signer struct {
	// TTL is the token lifetime; exp = now + TTL.
	TTL time.Duration
	// ClockSkew is subtracted from now for iat so slightly slow scanners accept fresh tokens.
	ClockSkew time.Duration
	// KeyBytes is the required session key length.
	KeyBytes int
}

// NewSigner returns a Signer with the given ttl, skew and key length.
func NewSigner(ttl, clockSkew time.Duration, keyBytes int) *Signer {
	if keyBytes <= 0 {
		keyBytes = DefaultKeyBytes
	}
	return &Signer{TTL: ttl, ClockSkew: clockSkew, KeyBytes: keyBytes}
}

// Sign produces a token binding ticketID and eventID to the window [now-skew, now+ttl].
// Returns ErrSigning when key is empty or not KeyBytes long, or when ticketID or eventID is
// empty, since the verifier rejects such tokens.
func (s *Signer) Sign(ticketID, eventID string, key []byte, now time.Time) (*Token, error) {
	keyBytes := s.KeyBytes
	if keyBytes <= 0 {
		keyBytes = DefaultKeyBytes
	}
	if len(key) == 0 || len(key) != keyBytes {
		return nil, ErrSigning
	}
	if ticketID == "" || eventID == "" {
		return nil, ErrSigning
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ticketID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-s.ClockSkew)),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
		},
		TicketID: ticketID,
		EventID:  eventID,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return nil, ErrSigning
	}
	return tokenFromClaims(raw, claims), nil
}
