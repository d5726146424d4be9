package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CandidateStore = (*CandidateRepo)(nil)

const candidateColumns = `
	id, kind, amount_minor, category, purpose, donor_name, payment_ref, status,
	signed_ref, attempted_ref, confirmed_ref, sender_address, failure_reason, last_error,
	attempts, attempt_started_at, next_attempt_at, recorded_at, created_at, updated_at`

// CandidateRepo is the SQLite implementation of the CandidateStore port interface.
type CandidateRepo struct {
	db *DB
}

// NewCandidateRepo creates a new CandidateRepo backed by the given DB.
func NewCandidateRepo(db *DB) *CandidateRepo {
	return &CandidateRepo{db: db}
}

// Create inserts a new candidate. Returns driven.ErrDuplicatePaymentRef if the
// payment reference is already known.
func (r *CandidateRepo) Create(ctx context.Context, c model.Candidate) error {
	const query = `
		INSERT INTO candidates (id, kind, amount_minor, category, purpose, donor_name, payment_ref,
		                        status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	status := c.Status
	if status == "" {
		status = model.CandidateUnattempted
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = c.CreatedAt
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		c.ID, string(c.Kind), c.Amount.Minor(), c.Category.String(), c.Purpose, c.DonorName,
		c.PaymentRef, string(status), c.CreatedAt.UnixMilli(), updated.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create candidate %s: %w", c.PaymentRef, driven.ErrDuplicatePaymentRef)
	}
	if err != nil {
		return fmt.Errorf("create candidate %s: %w", c.ID, err)
	}
	return nil
}

// Get retrieves a single candidate by id.
// Returns nil, nil if the candidate does not exist.
func (r *CandidateRepo) Get(ctx context.Context, id string) (*model.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE id = ?`

	c, err := scanCandidate(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate %s: %w", id, err)
	}
	return c, nil
}

// List returns candidates matching the filter, newest first.
func (r *CandidateRepo) List(ctx context.Context, filter model.CandidateFilter) ([]model.Candidate, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + candidateColumns + ` FROM candidates`)

	args := make([]any, 0, len(filter.Statuses)+1)
	if len(filter.Statuses) > 0 {
		b.WriteString(` WHERE status IN (` + placeholders(len(filter.Statuses)) + `)`)
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if filter.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	return r.queryCandidates(ctx, b.String(), args...)
}

// ListEligible returns candidates a scan may pick up: never attempted ones,
// attempts abandoned before the stale cutoff, and retryable failures whose
// backoff has elapsed and whose attempt budget remains. Retryable failures
// holding an unverified transaction reference are returned whatever their
// age or attempt count, so a late-mined broadcast is still reconciled. Those
// verification-only rows sort after fresh work; each group is oldest first.
func (r *CandidateRepo) ListEligible(ctx context.Context, q model.EligibilityQuery) ([]model.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates
		WHERE (
		        created_at >= ?
		    AND (
		            status = 'unattempted'
		         OR (status IN ('attempting', 'attempted') AND COALESCE(attempt_started_at, 0) <= ?)
		         OR (status = 'failed' AND retryable = 1 AND attempts < ? AND COALESCE(next_attempt_at, 0) <= ?)
		    )
		) OR (
		        status = 'failed' AND retryable = 1 AND COALESCE(next_attempt_at, 0) <= ?
		    AND (COALESCE(attempted_ref, '') <> '' OR COALESCE(signed_ref, '') <> '')
		)
		ORDER BY CASE WHEN created_at >= ? AND (status <> 'failed' OR attempts < ?) THEN 0 ELSE 1 END,
		         created_at ASC, id ASC
		LIMIT ?`

	createdAfter, now := q.CreatedAfter.UnixMilli(), q.Now.UnixMilli()
	return r.queryCandidates(ctx, query,
		createdAfter, q.StaleBefore.UnixMilli(), q.MaxAttempts, now,
		now,
		createdAfter, q.MaxAttempts,
		q.Limit,
	)
}

// Transition applies upd when the current status is one of from. The status
// check and the update run as one statement, so two concurrent transitions
// out of the same state cannot both succeed.
func (r *CandidateRepo) Transition(
	ctx context.Context, id string, from []model.CandidateStatus, upd model.CandidateUpdate,
) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition candidate %s: no source status", id)
	}

	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(upd.Status), nowMillis()}

	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if upd.SignedRef != nil {
		set("signed_ref", nullString(*upd.SignedRef))
	}
	if upd.AttemptedRef != nil {
		set("attempted_ref", nullString(*upd.AttemptedRef))
	}
	if upd.ConfirmedRef != nil {
		set("confirmed_ref", nullString(*upd.ConfirmedRef))
	}
	if upd.SenderAddress != nil {
		set("sender_address", nullString(*upd.SenderAddress))
	}
	if upd.FailureReason != nil {
		set("failure_reason", string(*upd.FailureReason))
		set("retryable", boolToInt(upd.FailureReason.Retryable()))
	}
	if upd.LastError != nil {
		set("last_error", *upd.LastError)
	}
	if upd.Attempts != nil {
		set("attempts", *upd.Attempts)
	}
	if upd.AttemptStartedAt != nil {
		set("attempt_started_at", toMillis(*upd.AttemptStartedAt))
	}
	if upd.NextAttemptAt != nil {
		set("next_attempt_at", toMillis(*upd.NextAttemptAt))
	}
	if upd.RecordedAt != nil {
		set("recorded_at", toMillis(*upd.RecordedAt))
	}

	args = append(args, id)
	for _, s := range from {
		args = append(args, string(s))
	}

	query := `UPDATE candidates SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition candidate %s to %s: %w", id, upd.Status, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *CandidateRepo) queryCandidates(ctx context.Context, query string, args ...any) ([]model.Candidate, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	return candidates, nil
}

func scanCandidate(s scanner) (*model.Candidate, error) {
	var c model.Candidate
	var kind, category, status, failure string
	var amount int64
	var signedRef, attemptedRef, confirmedRef, sender sql.NullString
	var attemptStarted, nextAttempt, recordedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(
		&c.ID, &kind, &amount, &category, &c.Purpose, &c.DonorName, &c.PaymentRef, &status,
		&signedRef, &attemptedRef, &confirmedRef, &sender, &failure, &c.LastError,
		&c.Attempts, &attemptStarted, &nextAttempt, &recordedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Kind = model.CandidateKind(kind)
	c.Status = model.CandidateStatus(status)
	c.Amount = model.Amount(amount)
	c.FailureReason = model.FailureReason(failure)
	c.Category, err = model.ParseCategory(category)
	if err != nil {
		return nil, fmt.Errorf("parse category: %w", err)
	}

	c.SignedRef = signedRef.String
	c.AttemptedRef = attemptedRef.String
	c.ConfirmedRef = confirmedRef.String
	c.SenderAddress = sender.String

	c.AttemptStartedAt = fromMillis(attemptStarted)
	c.NextAttemptAt = fromMillis(nextAttempt)
	c.RecordedAt = fromMillis(recordedAt)
	c.CreatedAt = fromMillis(sql.NullInt64{Int64: createdAt, Valid: true})
	c.UpdatedAt = fromMillis(sql.NullInt64{Int64: updatedAt, Valid: true})

	return &c, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
