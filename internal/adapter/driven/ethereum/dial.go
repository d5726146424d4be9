package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Dial connects to the first RPC endpoint that answers within timeout and
// reports the expected chain id. It returns the client and the URL it chose.
func Dial(ctx context.Context, urls []string, chainID int64, timeout time.Duration) (*ethclient.Client, string, error) {
	if len(urls) == 0 {
		return nil, "", errors.New("no rpc urls configured")
	}

	var errs []error
	for _, url := range urls {
		client, err := dialOne(ctx, url, chainID, timeout)
		if err != nil {
			slog.Warn("rpc endpoint unusable", "url", url, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		slog.Info("connected to rpc endpoint", "url", url, "chain_id", chainID)
		return client, url, nil
	}
	return nil, "", fmt.Errorf("dial ledger: %w", errors.Join(errs...))
}

func dialOne(ctx context.Context, url string, chainID int64, timeout time.Duration) (*ethclient.Client, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ethclient.DialContext(callCtx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	got, err := client.ChainID(callCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if got.Int64() != chainID {
		client.Close()
		return nil, fmt.Errorf("chain id %s, want %d", got, chainID)
	}
	return client, nil
}
