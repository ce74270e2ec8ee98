package store

import (
	"context"
	"path/filepath"
	"testing"

	"qr-access-control/internal/config"
	"qr-access-control/internal/ticket/domain"
)

func TestOpen_Drivers(t *testing.T) {
	testCases := []struct {
		name       string
		cfg        *config.Config
		persistent bool
	}{
		{"memory", &config.Config{DirectoryDriver: config.DriverMemory}, false},
		{"sqlite", &config.Config{DirectoryDriver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "access.db")}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Open(tc.cfg)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			if s.Persistent() != tc.persistent {
				t.Errorf("Persistent = %v", s.Persistent())
			}
			ctx := context.Background()
			if err := s.Tickets.Put(ctx, &domain.Ticket{ID: "T-1", EventID: "evt_1", Status: domain.StatusActive}); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := s.Tickets.Find(ctx, "T-1")
			if err != nil || got == nil || got.Status != domain.StatusActive {
				t.Fatalf("Find = %+v, %v", got, err)
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(&config.Config{DirectoryDriver: "redis"}); err == nil {
		t.Fatal("expected error")
	}
}
