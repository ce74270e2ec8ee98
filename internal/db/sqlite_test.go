package db

import (
	"path/filepath"
	"testing"
	"time"
)

func TestOpenSQLite_AppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	for _, table := range []string{"tickets", "ticket_entitlements", "ticket_gates", "zone_checkpoints", "ticket_sessions", "scan_attempts", "staff"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
	db.Close()

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", count)
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("0001_init.sql"); err != nil || v != 1 {
		t.Errorf("parseVersion = %d, %v", v, err)
	}
	if _, err := parseVersion("init.sql"); err == nil {
		t.Error("parseVersion without prefix should fail")
	}
}

func TestRebind(t *testing.T) {
	q := "UPDATE t SET a=? WHERE b=? AND c=?"
	if got := SQLite.Rebind(q); got != q {
		t.Errorf("SQLite.Rebind = %q", got)
	}
	if got := Postgres.Rebind(q); got != "UPDATE t SET a=$1 WHERE b=$2 AND c=$3" {
		t.Errorf("Postgres.Rebind = %q", got)
	}
}

func TestMillisRoundTrip(t *testing.T) {
	ts := time.Date(2026, 6, 1, 18, 0, 0, 123_000_000, time.UTC)
	if got := FromMillis(Millis(ts)); !got.Equal(ts) {
		t.Errorf("round trip = %v", got)
	}
	if TimePtr(NullMillis(nil)) != nil {
		t.Error("nil time should stay nil")
	}
	if p := TimePtr(NullMillis(&ts)); p == nil || !p.Equal(ts) {
		t.Errorf("TimePtr = %v", p)
	}
}
