package service

import (
	"context"
	"errors"
	"testing"

	"qr-access-control/internal/security"
	"qr-access-control/internal/staff/domain"
)

type mockStaffRepo struct {
	staff map[string]*domain.Staff
	err   error
}

var _ StaffRepo = (*mockStaffRepo)(nil)

func (m *mockStaffRepo) GetByID(_ context.Context, id string) (*domain.Staff, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.staff[id], nil
}

func newService(t *testing.T) *Service {
	t.Helper()
	hasher := security.NewHasher(4)
	hash := func(pin string) string {
		h, err := hasher.Hash([]byte(pin))
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		return h
	}
	repo := &mockStaffRepo{staff: map[string]*domain.Staff{
		"carlos": {ID: "carlos", DisplayName: "Carlos", Role: domain.RoleGate, PINHash: hash("1234"), GateID: "gate_1", ZoneCheckpointID: "ignored"},
		"maya":   {ID: "maya", DisplayName: "Maya", Role: domain.RoleZone, PINHash: hash("4321"), ZoneCheckpointID: "zc_10"},
	}}
	return NewService(repo, hasher, nil)
}

func TestLogin_Success(t *testing.T) {
	s := newService(t)
	p, err := s.Login(context.Background(), " carlos ", "1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if p.StaffID != "carlos" || p.Role != domain.RoleGate || p.GateID != "gate_1" || p.ZoneCheckpointID != "" {
		t.Errorf("profile = %+v", p)
	}
	p, err = s.Login(context.Background(), "maya", "4321")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if p.ZoneCheckpointID != "zc_10" || p.GateID != "" {
		t.Errorf("profile = %+v", p)
	}
}

func TestLogin_Errors(t *testing.T) {
	s := newService(t)
	testCases := []struct {
		name, id, pin string
		want          error
	}{
		{"missing id", "", "1234", ErrInvalidRequest},
		{"missing pin", "carlos", "", ErrInvalidRequest},
		{"unknown", "nobody", "1234", ErrStaffNotFound},
		{"wrong pin", "carlos", "0000", ErrInvalidPIN},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Login(context.Background(), tc.id, tc.pin); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLogin_RepoError(t *testing.T) {
	s := NewService(&mockStaffRepo{err: errors.New("db down")}, security.NewHasher(4), nil)
	_, err := s.Login(context.Background(), "carlos", "1234")
	if err == nil || errors.Is(err, ErrStaffNotFound) {
		t.Errorf("err = %v, want infrastructure error", err)
	}
}
