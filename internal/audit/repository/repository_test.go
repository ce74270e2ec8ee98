package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"qr-access-control/internal/audit/domain"
	"qr-access-control/internal/db"
)

func backends(t *testing.T) map[string]Repository {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return map[string]Repository{
		"memory": NewMemoryRepository(3),
		"sqlite": NewSQLiteRepository(conn),
	}
}

func TestRepository_ListByTicketNewestFirst(t *testing.T) {
	base := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, outcome := range []string{"DENY", "ALLOW", "DENY"} {
				a := &domain.Attempt{
					ID:             string(rune('a' + i)),
					TicketID:       "T-1",
					CheckpointKind: "GATE",
					CheckpointID:   "G1",
					Outcome:        outcome,
					CreatedAt:      base.Add(time.Duration(i) * time.Second),
				}
				if outcome == "DENY" {
					a.Reason = "USED"
				}
				if err := repo.Create(ctx, a); err != nil {
					t.Fatalf("Create: %v", err)
				}
			}
			if err := repo.Create(ctx, &domain.Attempt{ID: "z", TicketID: "T-2", Outcome: "ALLOW", CreatedAt: base}); err != nil {
				t.Fatalf("Create: %v", err)
			}

			got, err := repo.ListByTicket(ctx, "T-1", 2)
			if err != nil {
				t.Fatalf("ListByTicket: %v", err)
			}
			if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
				t.Fatalf("ListByTicket = %+v", got)
			}
			if got[0].Reason != "USED" || !got[0].CreatedAt.Equal(base.Add(2*time.Second)) {
				t.Errorf("attempt = %+v", got[0])
			}
			none, err := repo.ListByTicket(ctx, "T-404", 0)
			if err != nil || len(none) != 0 {
				t.Errorf("unknown ticket = %v, %v", none, err)
			}
		})
	}
}

func TestMemoryRepository_Bounded(t *testing.T) {
	repo := NewMemoryRepository(2)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		_ = repo.Create(ctx, &domain.Attempt{ID: id, TicketID: "T-1"})
	}
	got, _ := repo.ListByTicket(ctx, "T-1", 10)
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "2" {
		t.Errorf("ring = %+v", got)
	}
}
