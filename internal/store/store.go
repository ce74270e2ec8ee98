// Package store opens the ticket, session, staff and attempt repositories for the configured directory driver.
package store

import (
	"database/sql"
	"fmt"

	auditrepo "qr-access-control/internal/audit/repository"
	"qr-access-control/internal/config"
	"qr-access-control/internal/db"
	sessionrepo "qr-access-control/internal/session/repository"
	staffrepo "qr-access-control/internal/staff/repository"
	ticketrepo "qr-access-control/internal/ticket/repository"
)

// Tickets is the full ticket directory: reads, conditional writes, upserts and zone checkpoint mapping.
type Tickets interface {
	ticketrepo.Repository
	ticketrepo.Store
	ticketrepo.CheckpointRepository
}

// Stores groups the repositories behind one driver. DB is nil for the memory driver.
type Stores struct {
	Driver   string
	Tickets  Tickets
	Sessions sessionrepo.Repository
	Staff    staffrepo.Repository
	Attempts auditrepo.Repository
	DB       *sql.DB
}

// Open builds the repositories for cfg.DirectoryDriver. Postgres expects the schema to be
// migrated already (cmd/migrate); SQLite migrates on open.
func Open(cfg *config.Config) (*Stores, error) {
	switch cfg.DirectoryDriver {
	case config.DriverMemory, "":
		return Memory(), nil
	case config.DriverPostgres:
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		return &Stores{
			Driver:   config.DriverPostgres,
			Tickets:  ticketrepo.NewPostgresRepository(conn),
			Sessions: sessionrepo.NewPostgresRepository(conn),
			Staff:    staffrepo.NewPostgresRepository(conn),
			Attempts: auditrepo.NewPostgresRepository(conn),
			DB:       conn,
		}, nil
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("store: open sqlite: %w", err)
		}
		return &Stores{
			Driver:   config.DriverSQLite,
			Tickets:  ticketrepo.NewSQLiteRepository(conn),
			Sessions: sessionrepo.NewSQLiteRepository(conn),
			Staff:    staffrepo.NewSQLiteRepository(conn),
			Attempts: auditrepo.NewSQLiteRepository(conn),
			DB:       conn,
		}, nil
	}
	return nil, fmt.Errorf("store: unknown directory driver %q", cfg.DirectoryDriver)
}

// Memory returns process-local repositories. Attempts keep the latest DefaultListLimit per ticket.
func Memory() *Stores {
	return &Stores{
		Driver:   config.DriverMemory,
		Tickets:  ticketrepo.NewMemoryRepository(),
		Sessions: sessionrepo.NewMemoryRepository(),
		Staff:    staffrepo.NewMemoryRepository(),
		Attempts: auditrepo.NewMemoryRepository(auditrepo.DefaultListLimit),
	}
}

// Persistent reports whether data outlives the process.
func (s *Stores) Persistent() bool { return s.DB != nil }

// Close releases the database connection, if any.
func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
