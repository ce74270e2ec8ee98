package repository

import (
	"context"
	"sync"

	"qr-access-control/internal/audit/domain"
)

// MemoryRepository keeps the most recent attempts per ticket in a bounded ring.
type MemoryRepository struct {
	mu       sync.Mutex
	perTick  int
	byTicket map[string][]domain.Attempt
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository keeps at most perTicket attempts per ticket; non-positive uses DefaultListLimit.
func NewMemoryRepository(perTicket int) *MemoryRepository {
	if perTicket <= 0 {
		perTicket = DefaultListLimit
	}
	return &MemoryRepository{perTick: perTicket, byTicket: make(map[string][]domain.Attempt)}
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.byTicket[a.TicketID], *a)
	if len(list) > r.perTick {
		list = list[len(list)-r.perTick:]
	}
	r.byTicket[a.TicketID] = list
	return nil
}

func (r *MemoryRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]*domain.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byTicket[ticketID]
	out := make([]*domain.Attempt, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		a := list[i]
		out = append(out, &a)
	}
	return out, nil
}
