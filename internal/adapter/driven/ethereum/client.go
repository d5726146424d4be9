// Package ethereum implements the LedgerClient port on go-ethereum.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LedgerClient = (*Client)(nil)

// backend is the subset of *ethclient.Client the adapter uses.
type backend interface {
	EstimateGas(ctx context.Context, msg goethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config holds the ledger client settings.
type Config struct {
	ChainID          int64
	DonationContract string
	SpendingContract string
	// RPCTimeout bounds every single remote call.
	RPCTimeout time.Duration
	// FeeMarginPercent pads gas estimates.
	FeeMarginPercent int
	// PollInterval is the delay between receipt checks.
	PollInterval time.Duration
	Clock        clock.Clock
}

const (
	defaultRPCTimeout   = 15 * time.Second
	defaultPollInterval = 3 * time.Second
)

// Client implements the driven.LedgerClient port.
type Client struct {
	backend   backend
	chainID   *big.Int
	signer    types.Signer
	contracts *contracts
	timeout   time.Duration
	margin    int
	poll      time.Duration
	clock     clock.Clock
}

// NewClient creates a Client over the given backend, typically an
// *ethclient.Client returned by Dial.
func NewClient(b backend, cfg Config) (*Client, error) {
	if !common.IsHexAddress(cfg.DonationContract) {
		return nil, fmt.Errorf("invalid donation contract address %q", cfg.DonationContract)
	}
	if !common.IsHexAddress(cfg.SpendingContract) {
		return nil, fmt.Errorf("invalid spending contract address %q", cfg.SpendingContract)
	}
	if cfg.ChainID <= 0 {
		return nil, fmt.Errorf("invalid chain id %d", cfg.ChainID)
	}

	c, err := newContracts(common.HexToAddress(cfg.DonationContract), common.HexToAddress(cfg.SpendingContract))
	if err != nil {
		return nil, err
	}

	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = defaultRPCTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}

	chainID := big.NewInt(cfg.ChainID)
	return &Client{
		backend:   b,
		chainID:   chainID,
		signer:    types.NewEIP155Signer(chainID),
		contracts: c,
		timeout:   cfg.RPCTimeout,
		margin:    cfg.FeeMarginPercent,
		poll:      cfg.PollInterval,
		clock:     cfg.Clock,
	}, nil
}

// SenderAddress returns the checksummed address the secret signs for.
func (c *Client) SenderAddress(secret []byte) (string, error) {
	return Keys{}.SenderAddress(secret)
}

// Keys derives sender addresses without a node connection.
type Keys struct{}

// SenderAddress returns the checksummed address of a hex-encoded secp256k1
// private key.
func (Keys) SenderAddress(secret []byte) (string, error) {
	key, err := parseKey(secret)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// EstimateFee estimates gas for spec and pads it by the configured margin.
func (c *Client) EstimateFee(ctx context.Context, spec model.TxSpec) (model.FeeEstimate, error) {
	to, data, err := c.contracts.call(spec)
	if err != nil {
		return model.FeeEstimate{}, fmt.Errorf("build call: %w: %w", driven.ErrRejected, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	gas, err := c.backend.EstimateGas(callCtx, goethereum.CallMsg{
		From: common.HexToAddress(spec.From),
		To:   &to,
		Data: data,
	})
	if err != nil {
		return model.FeeEstimate{}, classifyEstimate(err)
	}

	price, err := c.backend.SuggestGasPrice(callCtx)
	if err != nil {
		return model.FeeEstimate{}, unavailable("suggest gas price", err)
	}

	return model.FeeEstimate{
		GasLimit: gas + gas*uint64(c.margin)/100,
		GasPrice: price,
	}, nil
}

// PendingNonce fetches the next sequence number for from, including
// transactions still in the pool.
func (c *Client) PendingNonce(ctx context.Context, from string) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	nonce, err := c.backend.PendingNonceAt(callCtx, common.HexToAddress(from))
	if err != nil {
		return 0, unavailable("pending nonce", err)
	}
	return nonce, nil
}

// Sign builds and signs a legacy EIP-155 transaction locally.
func (c *Client) Sign(spec model.TxSpec, fee model.FeeEstimate, nonce uint64, secret []byte) (model.SignedTx, error) {
	key, err := parseKey(secret)
	if err != nil {
		return model.SignedTx{}, err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	if spec.From != "" && !strings.EqualFold(spec.From, from.Hex()) {
		return model.SignedTx{}, fmt.Errorf("%w: key signs for %s, not %s", driven.ErrInvalidSecret, from.Hex(), spec.From)
	}

	to, data, err := c.contracts.call(spec)
	if err != nil {
		return model.SignedTx{}, fmt.Errorf("build call: %w: %w", driven.ErrRejected, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: fee.GasPrice,
		Gas:      fee.GasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	})

	signed, err := types.SignTx(tx, c.signer, key)
	if err != nil {
		return model.SignedTx{}, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return model.SignedTx{}, fmt.Errorf("encode transaction: %w", err)
	}

	return model.SignedTx{
		Hash:  signed.Hash().Hex(),
		Nonce: nonce,
		From:  from.Hex(),
		Raw:   raw,
	}, nil
}

// Submit broadcasts a signed transaction. A node that already knows the
// transaction counts as success.
func (c *Client) Submit(ctx context.Context, stx model.SignedTx) (string, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(stx.Raw); err != nil {
		return "", fmt.Errorf("decode signed transaction: %w: %w", driven.ErrRejected, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.backend.SendTransaction(callCtx, &tx); err != nil {
		if alreadyKnown(err) {
			slog.Info("transaction already known to node", "tx", tx.Hash().Hex())
			return tx.Hash().Hex(), nil
		}
		return "", classifySubmit(err)
	}
	return tx.Hash().Hex(), nil
}

// Receipt checks txRef once.
func (c *Client) Receipt(ctx context.Context, txRef string) (model.Confirmation, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	receipt, err := c.backend.TransactionReceipt(callCtx, common.HexToHash(txRef))
	if errors.Is(err, goethereum.NotFound) {
		return model.Confirmation{TxRef: txRef, Status: model.ConfirmationPending}, nil
	}
	if err != nil {
		return model.Confirmation{}, unavailable("transaction receipt", err)
	}
	return mapReceipt(txRef, receipt), nil
}

var errReceiptPending = errors.New("receipt pending")

// AwaitConfirmation polls for the receipt of txRef until timeout elapses.
// Transient RPC failures during the wait are retried. On timeout it returns
// a pending Confirmation; the broadcast itself cannot be undone.
func (c *Client) AwaitConfirmation(ctx context.Context, txRef string, timeout time.Duration) (model.Confirmation, error) {
	var conf model.Confirmation

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			got, err := c.Receipt(ctx, txRef)
			if err != nil {
				return err
			}
			if got.Status == model.ConfirmationPending {
				return errReceiptPending
			}
			conf = got
			return nil
		},
		NotifyFunc: func(lastErr error, attempt int) {
			if !errors.Is(lastErr, errReceiptPending) {
				slog.Warn("receipt check failed, retrying", "tx", txRef, "attempt", attempt, "error", lastErr)
			}
		},
		Delay:       c.poll,
		MaxDuration: timeout,
		Clock:       c.clock,
		Stop:        ctx.Done(),
	})
	switch {
	case err == nil:
		return conf, nil
	case retry.IsDurationExceeded(err):
		return model.Confirmation{TxRef: txRef, Status: model.ConfirmationPending}, nil
	case retry.IsRetryStopped(err):
		return model.Confirmation{}, fmt.Errorf("await confirmation %s: %w", txRef, ctx.Err())
	default:
		return model.Confirmation{}, fmt.Errorf("await confirmation %s: %w", txRef, retry.LastError(err))
	}
}

func mapReceipt(txRef string, r *types.Receipt) model.Confirmation {
	conf := model.Confirmation{
		TxRef:   txRef,
		Status:  model.ConfirmationReverted,
		GasUsed: r.GasUsed,
	}
	if r.BlockNumber != nil {
		conf.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.Status == types.ReceiptStatusSuccessful {
		conf.Status = model.ConfirmationSuccess
	}
	return conf
}

// parseKey decodes a hex private key, with or without 0x prefix.
func parseKey(secret []byte) (*ecdsa.PrivateKey, error) {
	hexKey := strings.TrimPrefix(strings.TrimSpace(string(secret)), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driven.ErrInvalidSecret, err)
	}
	return key, nil
}
