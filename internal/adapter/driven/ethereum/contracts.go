package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

const donationABI = `[{
	"inputs": [
		{"internalType": "string", "name": "donorName", "type": "string"},
		{"internalType": "uint256", "name": "amount", "type": "uint256"},
		{"internalType": "string", "name": "purpose", "type": "string"},
		{"internalType": "string", "name": "upiRefId", "type": "string"},
		{"internalType": "address", "name": "adminWallet", "type": "address"}
	],
	"name": "recordTransaction",
	"outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

const spendingABI = `[{
	"inputs": [
		{"internalType": "uint256", "name": "amount", "type": "uint256"},
		{"internalType": "uint8", "name": "categoryId", "type": "uint8"}
	],
	"name": "recordSpending",
	"outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// contracts encodes TxSpecs into calls on the two recording contracts.
type contracts struct {
	donation    common.Address
	spending    common.Address
	donationABI abi.ABI
	spendingABI abi.ABI
}

func newContracts(donation, spending common.Address) (*contracts, error) {
	d, err := abi.JSON(strings.NewReader(donationABI))
	if err != nil {
		return nil, fmt.Errorf("parse donation abi: %w", err)
	}
	s, err := abi.JSON(strings.NewReader(spendingABI))
	if err != nil {
		return nil, fmt.Errorf("parse spending abi: %w", err)
	}
	return &contracts{donation: donation, spending: spending, donationABI: d, spendingABI: s}, nil
}

// call returns the target contract and ABI-encoded input for spec.
func (c *contracts) call(spec model.TxSpec) (common.Address, []byte, error) {
	if spec.Amount <= 0 {
		return common.Address{}, nil, fmt.Errorf("amount must be positive, got %s", spec.Amount)
	}
	amount := big.NewInt(spec.Amount.Minor())

	switch spec.Kind {
	case model.KindDonation:
		if !common.IsHexAddress(spec.From) {
			return common.Address{}, nil, fmt.Errorf("invalid sender address %q", spec.From)
		}
		data, err := c.donationABI.Pack("recordTransaction",
			spec.DonorName, amount, spec.Purpose, spec.PaymentRef, common.HexToAddress(spec.From))
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("pack recordTransaction: %w", err)
		}
		return c.donation, data, nil
	case model.KindSpending:
		if !spec.Category.Valid() {
			return common.Address{}, nil, fmt.Errorf("invalid category %s", spec.Category)
		}
		data, err := c.spendingABI.Pack("recordSpending", amount, spec.Category.LedgerID())
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("pack recordSpending: %w", err)
		}
		return c.spending, data, nil
	default:
		return common.Address{}, nil, fmt.Errorf("unknown candidate kind %q", spec.Kind)
	}
}
