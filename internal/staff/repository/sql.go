package repository

import (
	"context"
	"database/sql"
	"errors"

	"qr-access-control/internal/db"
	"qr-access-control/internal/staff/domain"
)

// SQLRepository stores staff in the staff table (Postgres or SQLite).
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

var _ Repository = (*SQLRepository)(nil)

// NewPostgresRepository returns a staff repository on a pgx *sql.DB.
func NewPostgresRepository(conn *sql.DB) *SQLRepository {
	return &SQLRepository{db: conn, dialect: db.Postgres}
}

// NewSQLiteRepository returns a staff repository on a modernc sqlite *sql.DB.
func NewSQLiteRepository(conn *sql.DB) *SQLRepository {
	return &SQLRepository{db: conn, dialect: db.SQLite}
}

// GetByID returns the staff member for staffID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByID(ctx context.Context, staffID string) (*domain.Staff, error) {
	var (
		s    domain.Staff
		role string
	)
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT staff_id, display_name, role, pin_hash, gate_id, zone_checkpoint_id FROM staff WHERE staff_id = ?`), staffID).
		Scan(&s.ID, &s.DisplayName, &role, &s.PINHash, &s.GateID, &s.ZoneCheckpointID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Role = domain.Role(role)
	return &s, nil
}

// Put upserts the staff member.
func (r *SQLRepository) Put(ctx context.Context, s *domain.Staff) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`INSERT INTO staff (staff_id, display_name, role, pin_hash, gate_id, zone_checkpoint_id) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (staff_id) DO UPDATE SET display_name = excluded.display_name, role = excluded.role,
		 pin_hash = excluded.pin_hash, gate_id = excluded.gate_id, zone_checkpoint_id = excluded.zone_checkpoint_id`),
		s.ID, s.DisplayName, string(s.Role), s.PINHash, s.GateID, s.ZoneCheckpointID)
	return err
}
