package application

import (
	"errors"

	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

var (
	// ErrAlreadyInitialized is returned when creating a vault that already exists.
	ErrAlreadyInitialized = errors.New("vault already initialized")

	// ErrNotInitialized is returned when unlocking a vault that does not exist.
	ErrNotInitialized = errors.New("vault not initialized")

	// ErrWrongPassword is returned when the derived key fails to authenticate
	// the ciphertext.
	ErrWrongPassword = errors.New("wrong password")

	// ErrTooManyAttempts is returned while the vault is locked out after
	// repeated wrong passwords.
	ErrTooManyAttempts = errors.New("too many failed unlock attempts")

	// ErrUnsupportedVersion is returned for a Secret Record written by a newer release.
	ErrUnsupportedVersion = errors.New("unsupported vault format version")

	// ErrMalformedRecord is returned for a Secret Record whose fields are
	// out of range, such as KDF parameters no release would write.
	ErrMalformedRecord = errors.New("malformed vault record")

	// ErrWalletMismatch is returned when the unlocked key does not derive the
	// configured wallet address.
	ErrWalletMismatch = errors.New("secret does not match configured wallet address")

	// ErrNoSession is returned when no unexpired session exists and no
	// password was supplied.
	ErrNoSession = errors.New("no active session")

	// ErrLocked is returned when another recording run holds the candidate.
	ErrLocked = errors.New("candidate is locked by another run")

	// ErrCandidateNotFound is returned for an unknown candidate id.
	ErrCandidateNotFound = errors.New("candidate not found")

	// ErrInvalidPolicy is returned when an administrative policy update fails validation.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrInvalidCandidate is returned when a new candidate fails validation.
	ErrInvalidCandidate = errors.New("invalid candidate")

	// ErrWeakPassword is returned when a new vault password is too short.
	ErrWeakPassword = errors.New("password too short")
)

// ErrorClass is the coarse error taxonomy callers use to decide between
// retrying, surfacing to an administrator and skipping.
type ErrorClass int

const (
	// ClassUnknown covers errors outside the taxonomy.
	ClassUnknown ErrorClass = iota
	// ClassConfiguration means the automatic path cannot run; fall back to manual.
	ClassConfiguration
	// ClassAuthentication means a password was wrong; never retried automatically.
	ClassAuthentication
	// ClassNetwork means the ledger was unreachable; retried on a later scan.
	ClassNetwork
	// ClassValidation means the ledger rejected the request; terminal.
	ClassValidation
	// ClassConcurrency means another run holds the lock; skip this cycle.
	ClassConcurrency
)

// String returns a human-readable name for the error class.
func (c ErrorClass) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassAuthentication:
		return "authentication"
	case ClassNetwork:
		return "network"
	case ClassValidation:
		return "validation"
	case ClassConcurrency:
		return "concurrency"
	default:
		return "unknown"
	}
}

// Classify maps err to its ErrorClass.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrNotInitialized),
		errors.Is(err, ErrAlreadyInitialized),
		errors.Is(err, ErrUnsupportedVersion),
		errors.Is(err, ErrMalformedRecord),
		errors.Is(err, ErrNoSession),
		errors.Is(err, ErrWalletMismatch),
		errors.Is(err, driven.ErrInvalidSecret):
		return ClassConfiguration
	case errors.Is(err, ErrWrongPassword), errors.Is(err, ErrTooManyAttempts):
		return ClassAuthentication
	case errors.Is(err, driven.ErrNetworkUnavailable), errors.Is(err, driven.ErrNonceConflict):
		return ClassNetwork
	case errors.Is(err, driven.ErrEstimationReverted),
		errors.Is(err, driven.ErrRejected),
		errors.Is(err, driven.ErrDuplicatePaymentRef),
		errors.Is(err, ErrInvalidPolicy),
		errors.Is(err, ErrInvalidCandidate),
		errors.Is(err, ErrWeakPassword):
		return ClassValidation
	case errors.Is(err, ErrLocked):
		return ClassConcurrency
	default:
		return ClassUnknown
	}
}
