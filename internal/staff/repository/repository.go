package repository

import (
	"context"

	"qr-access-control/internal/staff/domain"
)

// Repository defines persistence for staff profiles.
type Repository interface {
	// GetByID returns the staff member, or nil if not found.
	GetByID(ctx context.Context, staffID string) (*domain.Staff, error)
	// Put inserts or replaces the staff member.
	Put(ctx context.Context, s *domain.Staff) error
}
