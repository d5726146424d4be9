package model

import "math/big"

// TxSpec describes the contract call recording one candidate. It is built
// from the candidate and the sender; the ledger adapter encodes it.
type TxSpec struct {
	Kind       CandidateKind
	From       string
	DonorName  string
	Amount     Amount
	Purpose    string
	PaymentRef string
	Category   Category
}

// FeeEstimate is a padded gas estimate.
type FeeEstimate struct {
	GasLimit uint64
	GasPrice *big.Int
}

// SignedTx is a locally signed transaction ready for broadcast.
type SignedTx struct {
	Hash  string
	Nonce uint64
	From  string
	Raw   []byte
}

// ConfirmationStatus is the observed state of a broadcast transaction.
type ConfirmationStatus string

const (
	ConfirmationSuccess  ConfirmationStatus = "success"
	ConfirmationReverted ConfirmationStatus = "reverted"
	ConfirmationPending  ConfirmationStatus = "pending"
)

// Confirmation is the result of waiting for a transaction receipt.
type Confirmation struct {
	TxRef       string
	Status      ConfirmationStatus
	BlockNumber uint64
	GasUsed     uint64
}
