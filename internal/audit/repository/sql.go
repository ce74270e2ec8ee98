package repository

import (
	"context"
	"database/sql"

	"qr-access-control/internal/audit/domain"
	"qr-access-control/internal/db"
)

// SQLRepository stores attempts in the scan_attempts table (Postgres or SQLite).
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

var _ Repository = (*SQLRepository)(nil)

// NewPostgresRepository returns an attempt repository on a pgx *sql.DB.
func NewPostgresRepository(conn *sql.DB) *SQLRepository {
	return &SQLRepository{db: conn, dialect: db.Postgres}
}

// NewSQLiteRepository returns an attempt repository on a modernc sqlite *sql.DB.
func NewSQLiteRepository(conn *sql.DB) *SQLRepository {
	return &SQLRepository{db: conn, dialect: db.SQLite}
}

// Create persists the attempt. The attempt must have ID set.
func (r *SQLRepository) Create(ctx context.Context, a *domain.Attempt) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`INSERT INTO scan_attempts (id, ticket_id, checkpoint_kind, checkpoint_id, outcome, reason, unavailable, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.TicketID, a.CheckpointKind, a.CheckpointID, a.Outcome, a.Reason, a.Unavailable, db.Millis(a.CreatedAt))
	return err
}

// ListByTicket returns up to limit attempts for ticketID, newest first.
func (r *SQLRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]*domain.Attempt, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(
		`SELECT id, ticket_id, checkpoint_kind, checkpoint_id, outcome, reason, unavailable, created_at
		 FROM scan_attempts WHERE ticket_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`), ticketID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Attempt
	for rows.Next() {
		var (
			a         domain.Attempt
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.TicketID, &a.CheckpointKind, &a.CheckpointID, &a.Outcome, &a.Reason, &a.Unavailable, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = db.FromMillis(createdAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}
