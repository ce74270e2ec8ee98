package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"qr-access-control/internal/db"
	"qr-access-control/internal/security"
	"qr-access-control/internal/session/domain"
)

// SQLRepository stores session contexts in the ticket_sessions table (Postgres or SQLite).
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewPostgresRepository returns a session repository on a pgx *sql.DB.
func NewPostgresRepository(conn *sql.DB) *SQLRepository {
	return &SQLRepository{db: conn, dialect: db.Postgres}
}

// NewSQLiteRepository returns a session repository on a modernc sqlite *sql.DB.
func NewSQLiteRepository(conn *sql.DB) *SQLRepository {
	return &SQLRepository{db: conn, dialect: db.SQLite}
}

var _ Repository = (*SQLRepository)(nil)

// Create persists the context. The context must have ID set.
func (r *SQLRepository) Create(ctx context.Context, s *domain.Context) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`INSERT INTO ticket_sessions (id, ticket_id, session_key, issued_at, expires_at) VALUES (?, ?, ?, ?, ?)`),
		s.ID, s.TicketID, security.EncodeKey(s.Key), db.Millis(s.IssuedAt), db.Millis(s.ExpiresAt))
	return err
}

// ListLive returns contexts for ticketID expiring after `after`, newest first.
// EventID is not stored; callers fill it from the ticket.
func (r *SQLRepository) ListLive(ctx context.Context, ticketID string, after time.Time) ([]*domain.Context, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(
		`SELECT id, ticket_id, session_key, issued_at, expires_at FROM ticket_sessions
		 WHERE ticket_id = ? AND expires_at > ? ORDER BY issued_at DESC`), ticketID, db.Millis(after))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Context
	for rows.Next() {
		var (
			c                   domain.Context
			encoded             string
			issuedAt, expiresAt int64
		)
		if err := rows.Scan(&c.ID, &c.TicketID, &encoded, &issuedAt, &expiresAt); err != nil {
			return nil, err
		}
		if c.Key, err = security.DecodeKey(encoded); err != nil {
			return nil, fmt.Errorf("session %s: %w", c.ID, err)
		}
		c.IssuedAt = db.FromMillis(issuedAt)
		c.ExpiresAt = db.FromMillis(expiresAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// DeleteExpired removes contexts that expired before `before`.
func (r *SQLRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`DELETE FROM ticket_sessions WHERE expires_at < ?`), db.Millis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
