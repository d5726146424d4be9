package model

import (
	"fmt"
	"time"
)

// CandidateStatus is the lifecycle state of a pending ledger recording.
type CandidateStatus string

const (
	CandidateUnattempted CandidateStatus = "unattempted"
	CandidateAttempting  CandidateStatus = "attempting"
	CandidateAttempted   CandidateStatus = "attempted"
	CandidateRecorded    CandidateStatus = "recorded"
	CandidateFailed      CandidateStatus = "failed"
)

// ParseCandidateStatus validates a status string.
func ParseCandidateStatus(s string) (CandidateStatus, error) {
	switch st := CandidateStatus(s); st {
	case CandidateUnattempted, CandidateAttempting, CandidateAttempted, CandidateRecorded, CandidateFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown candidate status %q", s)
	}
}

// CanTransitionTo reports whether moving from s to next respects the
// forward-only lifecycle. The only backward edge is failed -> attempting,
// and recorded is terminal.
func (s CandidateStatus) CanTransitionTo(next CandidateStatus) bool {
	switch s {
	case CandidateUnattempted:
		return next == CandidateAttempting || next == CandidateRecorded
	case CandidateAttempting:
		return next == CandidateAttempted || next == CandidateFailed || next == CandidateRecorded ||
			next == CandidateAttempting
	case CandidateAttempted:
		return next == CandidateRecorded || next == CandidateFailed || next == CandidateAttempting
	case CandidateFailed:
		return next == CandidateAttempting || next == CandidateRecorded || next == CandidateFailed
	case CandidateRecorded:
		return false
	default:
		return false
	}
}

// CandidateKind distinguishes the two on-chain record types.
type CandidateKind string

const (
	KindDonation CandidateKind = "donation"
	KindSpending CandidateKind = "spending"
)

// ParseCandidateKind validates a kind string.
func ParseCandidateKind(s string) (CandidateKind, error) {
	switch k := CandidateKind(s); k {
	case KindDonation, KindSpending:
		return k, nil
	default:
		return "", fmt.Errorf("unknown candidate kind %q", s)
	}
}

// Candidate is a locally recorded financial event awaiting ledger confirmation.
// The domain store owns it; the recorder only mutates the status and
// reference fields.
type Candidate struct {
	ID        string
	Kind      CandidateKind
	Amount    Amount
	Category  Category
	Purpose   string
	DonorName string
	// PaymentRef is the upstream payment reference (UPI id). It is unique and
	// is what the ledger contract deduplicates on.
	PaymentRef string

	Status        CandidateStatus
	SignedRef     string // hash of the last signed transaction, written before broadcast
	AttemptedRef  string // hash of the last transaction the node accepted
	ConfirmedRef  string // hash whose receipt confirmed inclusion
	SenderAddress string
	FailureReason FailureReason
	LastError     string
	Attempts      int

	AttemptStartedAt time.Time
	NextAttemptAt    time.Time
	RecordedAt       time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Age returns how long ago the candidate was created.
func (c Candidate) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// HasPendingReference reports whether a transaction for this candidate may
// already be on its way to the ledger.
func (c Candidate) HasPendingReference() bool {
	return c.AttemptedRef != "" || c.SignedRef != ""
}

// PendingReference returns the reference recovery should check first.
func (c Candidate) PendingReference() string {
	if c.AttemptedRef != "" {
		return c.AttemptedRef
	}
	return c.SignedRef
}

// CandidateUpdate is a partial update of the recorder-owned fields.
// Nil pointers leave the column untouched.
type CandidateUpdate struct {
	Status           CandidateStatus
	SignedRef        *string
	AttemptedRef     *string
	ConfirmedRef     *string
	SenderAddress    *string
	FailureReason    *FailureReason
	LastError        *string
	Attempts         *int
	AttemptStartedAt *time.Time
	NextAttemptAt    *time.Time
	RecordedAt       *time.Time
}

// CandidateFilter narrows an administrative listing.
type CandidateFilter struct {
	Statuses []CandidateStatus
	Limit    int
}

// EligibilityQuery describes which candidates a scan may pick up.
type EligibilityQuery struct {
	Now time.Time
	// CreatedAfter excludes candidates older than the scan's max age.
	CreatedAfter time.Time
	// StaleBefore marks attempting/attempted candidates whose attempt began
	// before this instant as abandoned mid-flight.
	StaleBefore time.Time
	// MaxAttempts bounds retries of failed candidates.
	MaxAttempts int
	Limit       int
}
