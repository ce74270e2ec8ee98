package repository

import (
	"context"
	"sync"

	"qr-access-control/internal/staff/domain"
)

// MemoryRepository is a mutex-guarded map of staff profiles.
type MemoryRepository struct {
	mu    sync.RWMutex
	staff map[string]domain.Staff
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{staff: make(map[string]domain.Staff)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, staffID string) (*domain.Staff, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.staff[staffID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) Put(ctx context.Context, s *domain.Staff) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staff[s.ID] = *s
	return nil
}
