package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PolicyStore = (*PolicyRepo)(nil)

// PolicyRepo is the SQLite implementation of the PolicyStore port interface.
// The policy lives in a single row with id 1.
type PolicyRepo struct {
	db *DB
}

// NewPolicyRepo creates a new PolicyRepo backed by the given DB.
func NewPolicyRepo(db *DB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

// GetPolicy returns the stored policy, or model.DefaultPolicy() if the row
// has not been written yet.
func (r *PolicyRepo) GetPolicy(ctx context.Context) (model.Policy, error) {
	const query = `
		SELECT enabled, mode, max_auto_amount_minor, session_timeout_seconds, last_modified_by, last_audit_at
		FROM recording_policy
		WHERE id = 1
	`

	var p model.Policy
	var enabled int
	var mode string
	var maxAmount, timeoutSeconds int64
	var lastAudit sql.NullInt64

	err := r.db.Reader.QueryRowContext(ctx, query).Scan(
		&enabled, &mode, &maxAmount, &timeoutSeconds, &p.LastModifiedBy, &lastAudit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultPolicy(), nil
	}
	if err != nil {
		return model.DefaultPolicy(), fmt.Errorf("get recording policy: %w", err)
	}

	p.Enabled = enabled != 0
	p.Mode, err = model.ParseRecordingMode(mode)
	if err != nil {
		return model.DefaultPolicy(), fmt.Errorf("parse recording policy: %w", err)
	}
	p.MaxAutoAmount = model.Amount(maxAmount)
	p.SessionTimeout = time.Duration(timeoutSeconds) * time.Second
	p.LastAuditAt = fromMillis(lastAudit)

	return p, nil
}

// SetPolicy replaces the singleton policy row.
func (r *PolicyRepo) SetPolicy(ctx context.Context, p model.Policy) error {
	const query = `
		INSERT INTO recording_policy (id, enabled, mode, max_auto_amount_minor, session_timeout_seconds,
		                              last_modified_by, last_audit_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			enabled = excluded.enabled,
			mode = excluded.mode,
			max_auto_amount_minor = excluded.max_auto_amount_minor,
			session_timeout_seconds = excluded.session_timeout_seconds,
			last_modified_by = excluded.last_modified_by,
			last_audit_at = excluded.last_audit_at
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		boolToInt(p.Enabled), string(p.Mode), p.MaxAutoAmount.Minor(),
		int64(p.SessionTimeout/time.Second), p.LastModifiedBy, toMillis(p.LastAuditAt),
	)
	if err != nil {
		return fmt.Errorf("set recording policy: %w", err)
	}
	return nil
}
