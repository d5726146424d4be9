package ethereum

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

const (
	testChainID  = 11155111
	testDonation = "0x1000000000000000000000000000000000000001"
	testSpending = "0x2000000000000000000000000000000000000002"
)

// rpcError mimics a JSON-RPC error response from a node.
type rpcError struct {
	code int
	msg  string
}

func (e rpcError) Error() string  { return e.msg }
func (e rpcError) ErrorCode() int { return e.code }

type fakeBackend struct {
	mu         sync.Mutex
	gas        uint64
	gasPrice   *big.Int
	nonce      uint64
	estimateFn func(goethereum.CallMsg) error
	sendErr    error
	sent       []*types.Transaction
	receipts   map[common.Hash]*types.Receipt
	receiptErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{gas: 100000, gasPrice: big.NewInt(2_000_000_000), receipts: map[common.Hash]*types.Receipt{}}
}

func (f *fakeBackend) EstimateGas(_ context.Context, msg goethereum.CallMsg) (uint64, error) {
	if f.estimateFn != nil {
		if err := f.estimateFn(msg); err != nil {
			return 0, err
		}
	}
	return f.gas, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	r, ok := f.receipts[h]
	if !ok {
		return nil, goethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) setReceipt(hash string, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[common.HexToHash(hash)] = &types.Receipt{Status: status, BlockNumber: big.NewInt(42), GasUsed: 21000}
}

func newTestClient(t *testing.T, b backend) *Client {
	t.Helper()
	c, err := NewClient(b, Config{
		ChainID:          testChainID,
		DonationContract: testDonation,
		SpendingContract: testSpending,
		FeeMarginPercent: 20,
		PollInterval:     5 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func testSecret(t *testing.T) ([]byte, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	secret := []byte("0x" + hex.EncodeToString(crypto.FromECDSA(key)))
	return secret, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func donationSpec(from string) model.TxSpec {
	return model.TxSpec{
		Kind:       model.KindDonation,
		From:       from,
		DonorName:  "Asha",
		Amount:     model.Rupees(500),
		Purpose:    "meals",
		PaymentRef: "UPI-1",
	}
}

func TestClient_SenderAddress(t *testing.T) {
	c := newTestClient(t, newFakeBackend())
	secret, addr := testSecret(t)

	got, err := c.SenderAddress(secret)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = c.SenderAddress([]byte("not-a-key"))
	require.ErrorIs(t, err, driven.ErrInvalidSecret)
}

func TestKeys_SenderAddress(t *testing.T) {
	secret, addr := testSecret(t)

	got, err := Keys{}.SenderAddress(bytes.TrimPrefix(secret, []byte("0x")))
	require.NoError(t, err)
	assert.Equal(t, addr, got)
}

func TestClient_EstimateFee_PadsMargin(t *testing.T) {
	b := newFakeBackend()
	var gotMsg goethereum.CallMsg
	b.estimateFn = func(msg goethereum.CallMsg) error {
		gotMsg = msg
		return nil
	}
	c := newTestClient(t, b)
	_, addr := testSecret(t)

	fee, err := c.EstimateFee(context.Background(), donationSpec(addr))
	require.NoError(t, err)
	assert.Equal(t, uint64(120000), fee.GasLimit)
	assert.Equal(t, big.NewInt(2_000_000_000), fee.GasPrice)

	require.NotNil(t, gotMsg.To)
	assert.Equal(t, common.HexToAddress(testDonation), *gotMsg.To)
	assert.Equal(t, common.HexToAddress(addr), gotMsg.From)
	assert.NotEmpty(t, gotMsg.Data)
}

func TestClient_EstimateFee_SpendingTargetsSpendingContract(t *testing.T) {
	b := newFakeBackend()
	var to common.Address
	b.estimateFn = func(msg goethereum.CallMsg) error {
		to = *msg.To
		return nil
	}
	c := newTestClient(t, b)

	_, err := c.EstimateFee(context.Background(), model.TxSpec{
		Kind: model.KindSpending, Amount: model.Rupees(10), Category: model.CategoryShelter,
	})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testSpending), to)
}

func TestClient_EstimateFee_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"revert", rpcError{code: 3, msg: "execution reverted: duplicate reference"}, driven.ErrEstimationReverted},
		{"transport", errors.New("connection refused"), driven.ErrNetworkUnavailable},
		{"timeout", context.DeadlineExceeded, driven.ErrNetworkUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			b.estimateFn = func(goethereum.CallMsg) error { return tt.err }
			c := newTestClient(t, b)
			_, addr := testSecret(t)

			_, err := c.EstimateFee(context.Background(), donationSpec(addr))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_SignAndSubmit(t *testing.T) {
	b := newFakeBackend()
	b.nonce = 7
	c := newTestClient(t, b)
	secret, addr := testSecret(t)
	ctx := context.Background()

	spec := donationSpec(addr)
	fee, err := c.EstimateFee(ctx, spec)
	require.NoError(t, err)
	nonce, err := c.PendingNonce(ctx, addr)
	require.NoError(t, err)

	stx, err := c.Sign(spec, fee, nonce, secret)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), stx.Nonce)
	assert.Equal(t, addr, stx.From)

	ref, err := c.Submit(ctx, stx)
	require.NoError(t, err)
	assert.Equal(t, stx.Hash, ref)

	require.Len(t, b.sent, 1)
	sent := b.sent[0]
	assert.Equal(t, uint64(7), sent.Nonce())
	assert.Equal(t, big.NewInt(testChainID), sent.ChainId())

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(testChainID)), sent)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(addr), sender)
}

func TestClient_Sign_RejectsMismatchedSender(t *testing.T) {
	c := newTestClient(t, newFakeBackend())
	secret, _ := testSecret(t)
	_, other := testSecret(t)

	_, err := c.Sign(donationSpec(other), model.FeeEstimate{GasLimit: 1, GasPrice: big.NewInt(1)}, 0, secret)
	require.ErrorIs(t, err, driven.ErrInvalidSecret)
}

func TestClient_Submit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"nonce too low", rpcError{code: -32000, msg: "nonce too low"}, driven.ErrNonceConflict},
		{"underpriced replacement", rpcError{code: -32000, msg: "replacement transaction underpriced"}, driven.ErrNonceConflict},
		{"rejected", rpcError{code: -32000, msg: "insufficient funds for gas * price + value"}, driven.ErrRejected},
		{"network", errors.New("dial tcp: i/o timeout"), driven.ErrNetworkUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			c := newTestClient(t, b)
			secret, addr := testSecret(t)
			stx, err := c.Sign(donationSpec(addr), model.FeeEstimate{GasLimit: 100000, GasPrice: big.NewInt(1)}, 0, secret)
			require.NoError(t, err)

			b.sendErr = tt.err
			_, err = c.Submit(context.Background(), stx)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_Submit_AlreadyKnownIsSuccess(t *testing.T) {
	b := newFakeBackend()
	c := newTestClient(t, b)
	secret, addr := testSecret(t)
	stx, err := c.Sign(donationSpec(addr), model.FeeEstimate{GasLimit: 100000, GasPrice: big.NewInt(1)}, 0, secret)
	require.NoError(t, err)

	b.sendErr = rpcError{code: -32000, msg: "already known"}
	ref, err := c.Submit(context.Background(), stx)
	require.NoError(t, err)
	assert.Equal(t, stx.Hash, ref)
}

func TestClient_Receipt(t *testing.T) {
	b := newFakeBackend()
	c := newTestClient(t, b)
	ctx := context.Background()
	hash := "0x" + hex.EncodeToString(make([]byte, 32))

	conf, err := c.Receipt(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, model.ConfirmationPending, conf.Status)

	b.setReceipt(hash, types.ReceiptStatusFailed)
	conf, err = c.Receipt(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, model.ConfirmationReverted, conf.Status)

	b.setReceipt(hash, types.ReceiptStatusSuccessful)
	conf, err = c.Receipt(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, model.ConfirmationSuccess, conf.Status)
	assert.Equal(t, uint64(42), conf.BlockNumber)
}

func TestClient_AwaitConfirmation(t *testing.T) {
	hash := common.BytesToHash([]byte{1}).Hex()

	t.Run("confirmed while waiting", func(t *testing.T) {
		b := newFakeBackend()
		c := newTestClient(t, b)
		go func() {
			time.Sleep(20 * time.Millisecond)
			b.setReceipt(hash, types.ReceiptStatusSuccessful)
		}()

		conf, err := c.AwaitConfirmation(context.Background(), hash, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, model.ConfirmationSuccess, conf.Status)
		assert.Equal(t, hash, conf.TxRef)
	})

	t.Run("timeout returns pending", func(t *testing.T) {
		c := newTestClient(t, newFakeBackend())

		conf, err := c.AwaitConfirmation(context.Background(), hash, 30*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, model.ConfirmationPending, conf.Status)
	})

	t.Run("context canceled", func(t *testing.T) {
		c := newTestClient(t, newFakeBackend())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.AwaitConfirmation(ctx, hash, 5*time.Second)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestDial_PicksEndpointWithMatchingChainID(t *testing.T) {
	chainServer := func(chainID string) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ID     json.RawMessage `json:"id"`
				Method string          `json:"method"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  chainID,
			})
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	mainnet := chainServer("0x1")
	sepolia := chainServer("0xaa36a7")

	client, url, err := Dial(context.Background(), []string{mainnet.URL, sepolia.URL}, testChainID, time.Second)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, sepolia.URL, url)

	_, _, err = Dial(context.Background(), []string{mainnet.URL}, testChainID, time.Second)
	require.Error(t, err)
}
