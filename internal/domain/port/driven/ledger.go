package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

var (
	// ErrNetworkUnavailable means the ledger could not be reached or a call
	// exceeded its timeout.
	ErrNetworkUnavailable = errors.New("ledger network unavailable")

	// ErrEstimationReverted means the call would fail on-chain.
	ErrEstimationReverted = errors.New("fee estimation reverted")

	// ErrNonceConflict means the sequence number was already used. The caller
	// must refetch the nonce and re-sign.
	ErrNonceConflict = errors.New("nonce conflict")

	// ErrRejected means the ledger refused the transaction.
	ErrRejected = errors.New("transaction rejected")

	// ErrInvalidSecret means the secret is not a usable signing key.
	ErrInvalidSecret = errors.New("invalid signing secret")
)

// LedgerClient defines the driven port for the remote ledger.
type LedgerClient interface {
	// SenderAddress returns the address the secret signs for.
	SenderAddress(secret []byte) (string, error)

	// EstimateFee returns a padded fee estimate. Returns ErrNetworkUnavailable
	// or ErrEstimationReverted.
	EstimateFee(ctx context.Context, spec model.TxSpec) (model.FeeEstimate, error)

	// PendingNonce fetches the sender's next sequence number.
	PendingNonce(ctx context.Context, from string) (uint64, error)

	// Sign signs locally. The secret never leaves the process.
	Sign(spec model.TxSpec, fee model.FeeEstimate, nonce uint64, secret []byte) (model.SignedTx, error)

	// Submit broadcasts a signed transaction and returns its reference.
	// Returns ErrNetworkUnavailable, ErrNonceConflict or ErrRejected.
	Submit(ctx context.Context, tx model.SignedTx) (string, error)

	// Receipt checks a reference once. A missing receipt is reported as
	// ConfirmationPending.
	Receipt(ctx context.Context, txRef string) (model.Confirmation, error)

	// AwaitConfirmation polls for the receipt until timeout, after which it
	// returns a Confirmation with status ConfirmationPending.
	AwaitConfirmation(ctx context.Context, txRef string, timeout time.Duration) (model.Confirmation, error)
}
