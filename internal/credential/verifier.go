package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeyResolver returns the session keys a ticket may have signed with at the given time.
// An empty result means the ticket has no usable session.
type KeyResolver interface {
	ActiveKeys(ctx context.Context, ticketID string, at time.Time) ([][]byte, error)
}

// Verifier checks token structure and signature against the keys of the claimed ticket.
type Verifier struct {
	keys   KeyResolver
	parser *jwt.Parser
}

// NewVerifier returns a Verifier that resolves keys through keys.
func NewVerifier(keys KeyResolver) *Verifier {
	return &Verifier{
		keys: keys,
		// Expiry is checked by Verify against the injected clock, not by the parser.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}
}

// Verify returns the decoded token when its signature verifies with one of the
// claimed ticket's keys. Errors:
//   - ErrInvalidToken: malformed, wrong algorithm, or no key verifies the signature.
//   - ErrExpired: signature valid but now > exp; the token is returned alongside.
//   - ErrKeyUnavailable (wrapped): the key resolver failed.
func (v *Verifier) Verify(ctx context.Context, raw string, now time.Time) (*Token, error) {
	claims, err := v.peek(raw)
	if err != nil {
		return nil, err
	}
	keys, err := v.keys.ActiveKeys(ctx, claims.Subject, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	for _, key := range keys {
		if len(key) == 0 {
			continue
		}
		verified := &Claims{}
		_, err := v.parser.ParseWithClaims(raw, verified, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil {
			continue
		}
		tok := tokenFromClaims(raw, verified)
		if tok.ExpiresAt.IsZero() {
			return nil, ErrInvalidToken
		}
		if tok.Expired(now) {
			return tok, ErrExpired
		}
		return tok, nil
	}
	return nil, ErrInvalidToken
}

// peek decodes the claims without checking the signature so the subject can select keys.
func (v *Verifier) peek(raw string) (*Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	for _, p := range parts {
		if p == "" {
			return nil, ErrInvalidToken
		}
	}
	claims := &Claims{}
	tok, _, err := v.parser.ParseUnverified(raw, claims)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if tok.Method == nil || tok.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.EventID == "" {
		return nil, ErrInvalidToken
	}
	if claims.TicketID != "" && claims.TicketID != claims.Subject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IsInfrastructure reports whether err came from the key resolver rather than the token.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrKeyUnavailable)
}
