package model

import "fmt"

// OutcomeKind is the top-level result of one recording attempt.
type OutcomeKind string

const (
	OutcomeRecorded OutcomeKind = "recorded"
	OutcomeFailed   OutcomeKind = "failed"
	OutcomeSkipped  OutcomeKind = "skipped"
)

// SkipReason explains why no ledger call was made.
type SkipReason string

const (
	SkipDisabled             SkipReason = "disabled"
	SkipManualMode           SkipReason = "manual_mode"
	SkipAmountExceedsLimit   SkipReason = "amount_exceeds_limit"
	SkipNoSession            SkipReason = "no_session"
	SkipAlreadyRecorded      SkipReason = "already_recorded"
	SkipLocked               SkipReason = "locked"
	SkipNotFound             SkipReason = "not_found"
	SkipNotEligible          SkipReason = "not_eligible"
	SkipRetryExhausted       SkipReason = "retry_exhausted"
	SkipAwaitingConfirmation SkipReason = "awaiting_confirmation"
)

// FailureReason is the reason code persisted on a failed candidate.
type FailureReason string

const (
	FailureNone                FailureReason = ""
	FailureNetworkUnavailable  FailureReason = "network_unavailable"
	FailureNonceConflict       FailureReason = "nonce_conflict"
	FailureConfirmationTimeout FailureReason = "confirmation_timeout"
	FailureEstimationReverted  FailureReason = "estimation_reverted"
	FailureRejected            FailureReason = "rejected"
	FailureReverted            FailureReason = "reverted"
	FailureInvalidSecret       FailureReason = "invalid_secret"
	FailureInternal            FailureReason = "internal"
)

// Retryable reports whether a candidate failing for this reason may be
// picked up again by a later scan.
func (r FailureReason) Retryable() bool {
	switch r {
	case FailureNetworkUnavailable, FailureNonceConflict, FailureConfirmationTimeout, FailureInternal:
		return true
	case FailureEstimationReverted, FailureRejected, FailureReverted, FailureInvalidSecret:
		return false
	default:
		return false
	}
}

// Outcome is returned by one recording attempt.
type Outcome struct {
	Kind   OutcomeKind
	TxRef  string
	Failed FailureReason
	Skip   SkipReason
}

// Recorded builds a recorded outcome.
func Recorded(txRef string) Outcome {
	return Outcome{Kind: OutcomeRecorded, TxRef: txRef}
}

// Failed builds a failed outcome. txRef is empty when nothing was broadcast.
func Failed(reason FailureReason, txRef string) Outcome {
	return Outcome{Kind: OutcomeFailed, Failed: reason, TxRef: txRef}
}

// Skipped builds a skipped outcome.
func Skipped(reason SkipReason) Outcome {
	return Outcome{Kind: OutcomeSkipped, Skip: reason}
}

// Reason returns the skip or failure reason as a plain string.
func (o Outcome) Reason() string {
	switch o.Kind {
	case OutcomeFailed:
		return string(o.Failed)
	case OutcomeSkipped:
		return string(o.Skip)
	default:
		return ""
	}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeRecorded:
		return fmt.Sprintf("recorded(%s)", o.TxRef)
	case OutcomeFailed, OutcomeSkipped:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason())
	default:
		return string(o.Kind)
	}
}
