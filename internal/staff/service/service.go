// Package service authenticates scanner staff by PIN.
package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"qr-access-control/internal/logging"
	"qr-access-control/internal/staff/domain"
)

// Sentinel errors for staff login; the handler maps them to HTTP status codes.
var (
	ErrInvalidRequest = errors.New("staffId and pin are required")
	ErrStaffNotFound  = errors.New("staff not found")
	ErrInvalidPIN     = errors.New("invalid pin")
)

// StaffRepo is the minimal staff repository needed by the service.
type StaffRepo interface {
	GetByID(ctx context.Context, staffID string) (*domain.Staff, error)
}

// PINHasher verifies PINs against stored hashes; *security.Hasher implements it.
type PINHasher interface {
	Compare(hash string, pin []byte) error
}

// Profile is what a scanner device learns about its operator.
type Profile struct {
	StaffID          string      `json:"staffId"`
	DisplayName      string      `json:"displayName"`
	Role             domain.Role `json:"role"`
	GateID           string      `json:"gateId,omitempty"`
	ZoneCheckpointID string      `json:"zoneCheckpointId,omitempty"`
}

// Service implements staff login.
type Service struct {
	repo   StaffRepo
	hasher PINHasher
	logger *zap.Logger
}

// NewService returns a staff Service.
func NewService(repo StaffRepo, hasher PINHasher, logger *zap.Logger) *Service {
	return &Service{repo: repo, hasher: hasher, logger: logging.OrNop(logger).Named("staff")}
}

// Login checks the PIN and returns the staff profile.
func (s *Service) Login(ctx context.Context, staffID, pin string) (*Profile, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" || pin == "" {
		return nil, ErrInvalidRequest
	}
	st, err := s.repo.GetByID(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrStaffNotFound
	}
	if err := s.hasher.Compare(st.PINHash, []byte(pin)); err != nil {
		s.logger.Info("staff login rejected", logging.StaffID(staffID))
		return nil, ErrInvalidPIN
	}
	p := &Profile{StaffID: st.ID, DisplayName: st.DisplayName, Role: st.Role}
	switch st.Role {
	case domain.RoleGate:
		p.GateID = st.GateID
	case domain.RoleZone:
		p.ZoneCheckpointID = st.ZoneCheckpointID
	}
	s.logger.Info("staff authenticated", logging.StaffID(staffID), zap.String("role", string(st.Role)))
	return p, nil
}
