package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qr-access-control/internal/credential"
	"qr-access-control/internal/logging"
	"qr-access-control/internal/security"
	"qr-access-control/internal/session/domain"
	ticketdomain "qr-access-control/internal/ticket/domain"
)

// Sentinel errors for the issuer; the handler maps them to HTTP status codes.
var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrTicketNotActive = errors.New("ticket is not active")
	ErrInvalidRequest  = errors.New("ticket id is required")
)

// TicketRepo is the minimal ticket directory needed by the issuer.
type TicketRepo interface {
	Find(ctx context.Context, ticketID string) (*ticketdomain.Ticket, error)
}

// SessionRepo is the minimal session repository needed by the issuer.
type SessionRepo interface {
	Create(ctx context.Context, s *domain.Context) error
	ListLive(ctx context.Context, ticketID string, after time.Time) ([]*domain.Context, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Options configures an Issuer. Zero values fall back to the defaults noted per field.
type Options struct {
	EventID string
	// TTL is the lifetime of a newly minted context (default 24h).
	TTL time.Duration
	// RefreshWindow: the newest context is reused while it has more than this left (default 1h).
	RefreshWindow time.Duration
	// TokenTTL keeps a context's key verifiable this long past its expiry so the last
	// tokens signed with it can still be scanned (default 20s).
	TokenTTL time.Duration
	// KeyBytes is the generated key length (default 32).
	KeyBytes int
}

// Issuer hands out session contexts for tickets and resolves verification keys.
type Issuer struct {
	tickets  TicketRepo
	sessions SessionRepo
	opts     Options
	logger   *zap.Logger
	nowF     func() time.Time
}

// NewIssuer returns an Issuer over the given repositories.
func NewIssuer(tickets TicketRepo, sessions SessionRepo, opts Options, logger *zap.Logger) *Issuer {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = time.Hour
	}
	if opts.RefreshWindow >= opts.TTL {
		opts.RefreshWindow = opts.TTL / 2
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 20 * time.Second
	}
	if opts.KeyBytes <= 0 {
		opts.KeyBytes = credential.DefaultKeyBytes
	}
	return &Issuer{
		tickets:  tickets,
		sessions: sessions,
		opts:     opts,
		logger:   logging.OrNop(logger).Named("session"),
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

var _ credential.KeyResolver = (*Issuer)(nil)

// Issue returns a signing context for ticketID. Tickets that are ACTIVE or USED get one
// (USED tickets still need rotating codes for zone checkpoints). The newest live context is
// reused until it enters the refresh window; then a fresh key is minted.
func (s *Issuer) Issue(ctx context.Context, ticketID string) (*domain.Context, error) {
	if ticketID == "" {
		return nil, ErrInvalidRequest
	}
	t, err := s.tickets.Find(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	if t == nil || (s.opts.EventID != "" && t.EventID != s.opts.EventID) {
		return nil, ErrTicketNotFound
	}
	if t.Status != ticketdomain.StatusActive && t.Status != ticketdomain.StatusUsed {
		return nil, ErrTicketNotActive
	}

	now := s.nowF()
	live, err := s.sessions.ListLive(ctx, ticketID, now)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(live) > 0 && live[0].Remaining(now) > s.opts.RefreshWindow {
		c := live[0]
		c.EventID = t.EventID
		return c, nil
	}

	key, err := security.GenerateSessionKey(s.opts.KeyBytes)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	c := &domain.Context{
		ID:        uuid.New().String(),
		TicketID:  ticketID,
		EventID:   t.EventID,
		Key:       key,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.opts.TTL),
	}
	if err := s.sessions.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("session issued",
		logging.TicketID(ticketID),
		zap.String("key_fp", security.KeyFingerprint(key)),
		zap.Time("expires_at", c.ExpiresAt))
	return c, nil
}

// ActiveKeys returns the keys a token for ticketID may carry at `at`: every context not
// yet expired, plus those expired less than TokenTTL ago.
func (s *Issuer) ActiveKeys(ctx context.Context, ticketID string, at time.Time) ([][]byte, error) {
	live, err := s.sessions.ListLive(ctx, ticketID, at.Add(-s.opts.TokenTTL))
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, 0, len(live))
	for _, c := range live {
		keys = append(keys, c.Key)
	}
	return keys, nil
}

// Purge deletes contexts whose keys can no longer verify any token.
func (s *Issuer) Purge(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.nowF().Add(-s.opts.TokenTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("expired sessions purged", zap.Int64("count", n))
	}
	return n, nil
}
