package repository

import (
	"context"

	"qr-access-control/internal/audit/domain"
)

// DefaultListLimit is used when a caller passes a non-positive limit.
const DefaultListLimit = 50

// Repository defines persistence for scan attempts.
type Repository interface {
	Create(ctx context.Context, a *domain.Attempt) error
	// ListByTicket returns up to limit attempts for ticketID, newest first.
	ListByTicket(ctx context.Context, ticketID string, limit int) ([]*domain.Attempt, error)
}
