package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"qr-access-control/internal/session/domain"
)

// MemoryRepository keeps session contexts in process.
type MemoryRepository struct {
	mu       sync.RWMutex
	byTicket map[string][]*domain.Context
}

// NewMemoryRepository returns an empty in-memory session store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byTicket: make(map[string][]*domain.Context)}
}

var _ Repository = (*MemoryRepository)(nil)

func clone(c *domain.Context) *domain.Context {
	cp := *c
	cp.Key = slices.Clone(c.Key)
	return &cp
}

// Create stores a copy of s.
func (r *MemoryRepository) Create(ctx context.Context, s *domain.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTicket[s.TicketID] = append(r.byTicket[s.TicketID], clone(s))
	return nil
}

// ListLive returns copies of contexts expiring after `after`, newest first.
func (r *MemoryRepository) ListLive(ctx context.Context, ticketID string, after time.Time) ([]*domain.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Context
	for _, c := range r.byTicket[ticketID] {
		if c.ExpiresAt.After(after) {
			out = append(out, clone(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

// DeleteExpired drops contexts that expired before `before`.
func (r *MemoryRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, list := range r.byTicket {
		kept := list[:0]
		for _, c := range list {
			if c.ExpiresAt.Before(before) {
				n++
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(r.byTicket, id)
		} else {
			r.byTicket[id] = kept
		}
	}
	return n, nil
}
