// Package migrate applies the embedded Postgres schema with golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"qr-access-control/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Direction is the way Run moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ErrNoChange is returned by migrate when already at the target version; Run swallows it.
var ErrNoChange = migrate.ErrNoChange

// ParseDirection validates a CLI flag value.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Up, Down:
		return Direction(s), nil
	}
	return "", fmt.Errorf("direction must be up or down, got %q", s)
}

// Run applies the ticket, session, attempt and staff tables in the given direction.
// SQLite databases migrate themselves on open and never go through here.
func Run(dsn string, direction Direction) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set; set it or use DIRECTORY_DRIVER=sqlite")
	}
	if _, err := ParseDirection(string(direction)); err != nil {
		return err
	}

	src, err := openSource()
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if direction == Up {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func openSource() (source.Driver, error) {
	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	return src, nil
}
