package ethereum

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

// Anything that is not a JSON-RPC error response (dial failure, HTTP status,
// timeout) means the node could not answer and is reported as unavailable.
func classifyEstimate(err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return unavailable("estimate gas", err)
	}
	return fmt.Errorf("estimate gas: %w: %w", driven.ErrEstimationReverted, err)
}

func classifySubmit(err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return unavailable("send transaction", err)
	}

	msg := strings.ToLower(rpcErr.Error())
	switch {
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "nonce too high"),
		strings.Contains(msg, "replacement transaction underpriced"):
		return fmt.Errorf("send transaction: %w: %w", driven.ErrNonceConflict, err)
	default:
		return fmt.Errorf("send transaction: %w: %w", driven.ErrRejected, err)
	}
}

// alreadyKnown reports whether the node already holds this exact transaction,
// which happens when a broadcast is repeated after a lost response.
func alreadyKnown(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := strings.ToLower(rpcErr.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: timed out", op, driven.ErrNetworkUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", op, driven.ErrNetworkUnavailable, err)
}
