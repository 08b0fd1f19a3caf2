package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/avelasco/studyhub/internal/model"
	"github.com/avelasco/studyhub/internal/repository"
)

var _ repository.AuditRepository = (*AuditDB)(nil)

// AuditDB is the SQLite-backed audit-event repository.
type AuditDB struct {
	conn *sql.DB
}

// Record appends one audit event.
func (a *AuditDB) Record(ctx context.Context, event *model.AuditEvent) error {
	event.ID = xid.New().String()
	event.CreatedAt = time.Now()

	_, err := a.conn.ExecContext(ctx,
		`INSERT INTO audit_events (id, user_id, action, detail, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.ID,
		event.UserID,
		event.Action,
		event.Detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording audit event %s for user %s: %w",
			event.Action, event.UserID, err)
	}

	return nil
}

// ListForUser returns a user's audit trail, newest first.
func (a *AuditDB) ListForUser(ctx context.Context, userID string) ([]model.AuditEvent, error) {
	rows, err := a.conn.QueryContext(ctx,
		`SELECT id, user_id, action, detail, created_at
		 FROM audit_events WHERE user_id = ? ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing audit events for user %s: %w", userID, err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning audit row: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
