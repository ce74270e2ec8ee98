package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"qr-access-control/internal/db"
	"qr-access-control/internal/ticket/domain"
)

// SQLRepository is the ticket directory on Postgres or SQLite. Both share one schema;
// times are unix milliseconds.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewPostgresRepository returns a ticket directory backed by a pgx *sql.DB.
func NewPostgresRepository(conn *sql.DB) *SQLRepository {
	return &SQLRepository{db: conn, dialect: db.Postgres}
}

// NewSQLiteRepository returns a ticket directory backed by a modernc sqlite *sql.DB.
func NewSQLiteRepository(conn *sql.DB) *SQLRepository {
	return &SQLRepository{db: conn, dialect: db.SQLite}
}

var (
	_ Store                = (*SQLRepository)(nil)
	_ CheckpointRepository = (*SQLRepository)(nil)
)

func (r *SQLRepository) q(query string) string { return r.dialect.Rebind(query) }

// Find returns the ticket with entitlements and allowlist, or nil if not found.
func (r *SQLRepository) Find(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var (
		t            domain.Ticket
		status       string
		admittedAt   sql.NullInt64
		admittedGate sql.NullString
	)
	err := r.db.QueryRowContext(ctx, r.q(
		`SELECT ticket_id, event_id, holder_name, status, admitted_at, admitted_gate
		 FROM tickets WHERE ticket_id = ?`), ticketID).
		Scan(&t.ID, &t.EventID, &t.HolderName, &status, &admittedAt, &admittedGate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Status = domain.Status(status)
	t.AdmittedAt = db.TimePtr(admittedAt)
	t.AdmittedGate = admittedGate.String

	if t.Entitlements, err = r.entitlements(ctx, ticketID); err != nil {
		return nil, err
	}
	if t.GateAllowlist, err = r.gates(ctx, ticketID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *SQLRepository) entitlements(ctx context.Context, ticketID string) ([]domain.Entitlement, error) {
	rows, err := r.db.QueryContext(ctx, r.q(
		`SELECT zone_id, zone_name, reentry_limit, reentry_used, window_start_ms, window_end_ms
		 FROM ticket_entitlements WHERE ticket_id = ? ORDER BY zone_id`), ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Entitlement{}
	for rows.Next() {
		var (
			e          domain.Entitlement
			start, end sql.NullInt64
		)
		if err := rows.Scan(&e.ZoneID, &e.ZoneName, &e.ReentryLimit, &e.ReentryUsed, &start, &end); err != nil {
			return nil, err
		}
		if start.Valid && end.Valid {
			e.TimeWindow = &domain.TimeWindow{Start: db.FromMillis(start.Int64), End: db.FromMillis(end.Int64)}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLRepository) gates(ctx context.Context, ticketID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.q(
		`SELECT gate_id FROM ticket_gates WHERE ticket_id = ? ORDER BY gate_id`), ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// TransitionToUsed is a single conditional UPDATE; zero rows affected is a lost race.
func (r *SQLRepository) TransitionToUsed(ctx context.Context, ticketID, gateID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.q(
		`UPDATE tickets SET status = 'USED', admitted_at = ?, admitted_gate = ?
		 WHERE ticket_id = ? AND status = 'ACTIVE'`), db.Millis(at), gateID, ticketID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// IncrementReentry bumps reentry_used only while under the limit.
func (r *SQLRepository) IncrementReentry(ctx context.Context, ticketID, zoneID string) error {
	res, err := r.db.ExecContext(ctx, r.q(
		`UPDATE ticket_entitlements SET reentry_used = reentry_used + 1
		 WHERE ticket_id = ? AND zone_id = ?
		   AND (reentry_limit = 0 OR reentry_used < reentry_limit)`), ticketID, zoneID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// Put upserts the ticket and replaces its entitlements and allowlist in one transaction.
func (r *SQLRepository) Put(ctx context.Context, t *domain.Ticket) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var gate sql.NullString
	if t.AdmittedGate != "" {
		gate = sql.NullString{String: t.AdmittedGate, Valid: true}
	}
	if _, err = tx.ExecContext(ctx, r.q(
		`INSERT INTO tickets (ticket_id, event_id, holder_name, status, admitted_at, admitted_gate)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (ticket_id) DO UPDATE SET
		   event_id = excluded.event_id, holder_name = excluded.holder_name, status = excluded.status,
		   admitted_at = excluded.admitted_at, admitted_gate = excluded.admitted_gate`),
		t.ID, t.EventID, t.HolderName, string(t.Status), db.NullMillis(t.AdmittedAt), gate); err != nil {
		return fmt.Errorf("upsert ticket: %w", err)
	}
	if _, err = tx.ExecContext(ctx, r.q(`DELETE FROM ticket_entitlements WHERE ticket_id = ?`), t.ID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, r.q(`DELETE FROM ticket_gates WHERE ticket_id = ?`), t.ID); err != nil {
		return err
	}
	for _, e := range t.Entitlements {
		var start, end sql.NullInt64
		if e.TimeWindow != nil {
			start = sql.NullInt64{Int64: db.Millis(e.TimeWindow.Start), Valid: true}
			end = sql.NullInt64{Int64: db.Millis(e.TimeWindow.End), Valid: true}
		}
		if _, err = tx.ExecContext(ctx, r.q(
			`INSERT INTO ticket_entitlements
			 (ticket_id, zone_id, zone_name, reentry_limit, reentry_used, window_start_ms, window_end_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`),
			t.ID, e.ZoneID, e.ZoneName, e.ReentryLimit, e.ReentryUsed, start, end); err != nil {
			return fmt.Errorf("insert entitlement %s: %w", e.ZoneID, err)
		}
	}
	for _, g := range t.GateAllowlist {
		if _, err = tx.ExecContext(ctx, r.q(
			`INSERT INTO ticket_gates (ticket_id, gate_id) VALUES (?, ?)`), t.ID, g); err != nil {
			return fmt.Errorf("insert gate %s: %w", g, err)
		}
	}
	return tx.Commit()
}

// ZoneFor returns the mapped zone, or "" when unmapped.
func (r *SQLRepository) ZoneFor(ctx context.Context, checkpointID string) (string, error) {
	var zone string
	err := r.db.QueryRowContext(ctx, r.q(
		`SELECT zone_id FROM zone_checkpoints WHERE checkpoint_id = ?`), checkpointID).Scan(&zone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return zone, err
}

// PutZoneCheckpoint upserts a checkpoint to zone mapping.
func (r *SQLRepository) PutZoneCheckpoint(ctx context.Context, checkpointID, zoneID string) error {
	_, err := r.db.ExecContext(ctx, r.q(
		`INSERT INTO zone_checkpoints (checkpoint_id, zone_id) VALUES (?, ?)
		 ON CONFLICT (checkpoint_id) DO UPDATE SET zone_id = excluded.zone_id`), checkpointID, zoneID)
	return err
}
