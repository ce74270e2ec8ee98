package repository

import (
	"context"
	"time"

	"qr-access-control/internal/session/domain"
)

// Repository defines persistence for session contexts. A ticket may hold several
// overlapping contexts while keys roll over.
type Repository interface {
	Create(ctx context.Context, s *domain.Context) error
	// ListLive returns the ticket's contexts expiring after `after`, newest first.
	ListLive(ctx context.Context, ticketID string, after time.Time) ([]*domain.Context, error)
	// DeleteExpired removes contexts that expired before `before` and returns how many.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
