package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuditStore = (*AuditRepo)(nil)

// AuditRepo is the SQLite implementation of the AuditStore port interface.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new AuditRepo backed by the given DB.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Append inserts an audit event. Events are never updated or deleted.
func (r *AuditRepo) Append(ctx context.Context, ev model.AuditEvent) error {
	const query = `INSERT INTO audit_events (id, action, actor, detail, at) VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.Writer.ExecContext(ctx, query, ev.ID, string(ev.Action), ev.Actor, ev.Detail, ev.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("append audit event %s: %w", ev.Action, err)
	}
	return nil
}

// List returns up to limit events, most recent first.
func (r *AuditRepo) List(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	const query = `
		SELECT id, action, actor, detail, at
		FROM audit_events
		ORDER BY at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var action string
		var at int64
		if err := rows.Scan(&ev.ID, &action, &ev.Actor, &ev.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Action = model.AuditAction(action)
		ev.At = fromMillis(sql.NullInt64{Int64: at, Valid: true})
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
