// Package credential signs and verifies the short-lived rotating tokens shown
// as QR codes. A token is an HS256 JWT keyed with the ticket's session key.
package credential

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSigning is returned when the session key is absent or has the wrong length, or an id is missing.
	ErrSigning = errors.New("credential: cannot sign with this key")
	// ErrInvalidToken is returned when a token is malformed or its signature does not verify.
	ErrInvalidToken = errors.New("credential: invalid token")
	// ErrExpired is returned when a token verified but now is past its expiry.
	ErrExpired = errors.New("credential: token expired")
	// ErrKeyUnavailable wraps failures of the key resolver (store down, timeout).
	ErrKeyUnavailable = errors.New("credential: session keys unavailable")
)

// Claims is the token payload: sub, tid, evt, iat, exp. tid duplicates sub.
type Claims struct {
	jwt.RegisteredClaims
	TicketID string `json:"tid,omitempty"`
	EventID  string `json:"evt"`
}

// Token is a signed rotating credential and its decoded fields.
type Token struct {
	Raw       string
	TicketID  string
	EventID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now.
// A token is still valid at exactly its expiry second.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func tokenFromClaims(raw string, c *Claims) *Token {
	t := &Token{Raw: raw, TicketID: c.Subject, EventID: c.EventID}
	if c.IssuedAt != nil {
		t.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		t.ExpiresAt = c.ExpiresAt.Time
	}
	return t
}
