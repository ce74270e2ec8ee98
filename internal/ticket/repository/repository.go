package repository

import (
	"context"
	"errors"
	"time"

	"qr-access-control/internal/ticket/domain"
)

// ErrConflict is returned when a conditional update matched no row: the ticket is
// no longer ACTIVE, or the zone entitlement is exhausted or missing.
var ErrConflict = errors.New("ticket: conditional update conflict")

// Repository is the ticket directory contract the checkpoint engine depends on.
// Writes are conditional so concurrent scans of one ticket commit at most once.
type Repository interface {
	// Find returns the ticket, or nil if not found. Errors are infrastructure failures only.
	Find(ctx context.Context, ticketID string) (*domain.Ticket, error)
	// TransitionToUsed sets ACTIVE -> USED with the admission record, or returns ErrConflict.
	TransitionToUsed(ctx context.Context, ticketID, gateID string, at time.Time) error
	// IncrementReentry bumps reentryUsed for the zone unless the limit is reached; ErrConflict otherwise.
	IncrementReentry(ctx context.Context, ticketID, zoneID string) error
}

// Store adds the write path used by seeding and administration.
type Store interface {
	Repository
	// Put inserts or replaces the ticket with its entitlements and allowlist.
	Put(ctx context.Context, t *domain.Ticket) error
}

// CheckpointRepository maps zone checkpoint ids to zone ids.
type CheckpointRepository interface {
	// ZoneFor returns the zone for checkpointID, or "" when unmapped.
	ZoneFor(ctx context.Context, checkpointID string) (string, error)
	PutZoneCheckpoint(ctx context.Context, checkpointID, zoneID string) error
}
