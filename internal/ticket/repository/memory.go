package repository

import (
	"context"
	"sync"
	"time"

	"qr-access-control/internal/ticket/domain"
)

// MemoryRepository is an in-process ticket directory. All reads return copies.
type MemoryRepository struct {
	mu          sync.Mutex
	tickets     map[string]*domain.Ticket
	checkpoints map[string]string
}

// NewMemoryRepository returns an empty in-memory directory.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tickets:     make(map[string]*domain.Ticket),
		checkpoints: make(map[string]string),
	}
}

var (
	_ Store                = (*MemoryRepository)(nil)
	_ CheckpointRepository = (*MemoryRepository)(nil)
)

// Find returns a copy of the ticket, or nil if not found.
func (r *MemoryRepository) Find(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickets[ticketID].Clone(), nil
}

// TransitionToUsed marks an ACTIVE ticket USED at gateID.
func (r *MemoryRepository) TransitionToUsed(ctx context.Context, ticketID, gateID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[ticketID]
	if !ok || t.Status != domain.StatusActive {
		return ErrConflict
	}
	at = at.UTC()
	t.Status = domain.StatusUsed
	t.AdmittedAt = &at
	t.AdmittedGate = gateID
	return nil
}

// IncrementReentry consumes one zone entry.
func (r *MemoryRepository) IncrementReentry(ctx context.Context, ticketID, zoneID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[ticketID]
	if !ok {
		return ErrConflict
	}
	for i := range t.Entitlements {
		e := &t.Entitlements[i]
		if e.ZoneID != zoneID {
			continue
		}
		if e.Exhausted() {
			return ErrConflict
		}
		e.ReentryUsed++
		return nil
	}
	return ErrConflict
}

// Put stores a copy of t.
func (r *MemoryRepository) Put(ctx context.Context, t *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[t.ID] = t.Clone()
	return nil
}

// ZoneFor returns the mapped zone, or "" when unmapped.
func (r *MemoryRepository) ZoneFor(ctx context.Context, checkpointID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkpoints[checkpointID], nil
}

// PutZoneCheckpoint maps checkpointID to zoneID.
func (r *MemoryRepository) PutZoneCheckpoint(ctx context.Context, checkpointID, zoneID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints[checkpointID] = zoneID
	return nil
}
