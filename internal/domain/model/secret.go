package model

import "time"

// SecretFormatVersion is the current Secret Record layout.
const SecretFormatVersion = 1

// KDFParams are the versioned key-derivation parameters stored beside the
// ciphertext so a later release can raise them without breaking old vaults.
type KDFParams struct {
	Algorithm string `json:"algorithm"`
	Time      uint32 `json:"time"`
	Memory    uint32 `json:"memory"`
	Threads   uint8  `json:"threads"`
	KeyLen    uint32 `json:"key_len"`
}

// SecretRecord is the encrypted signing credential at rest. It never holds
// plaintext.
type SecretRecord struct {
	Version    int       `json:"version"`
	KDF        KDFParams `json:"kdf"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	// Address is the wallet address the secret derives, kept for status
	// display without unlocking.
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	RotatedAt time.Time `json:"rotated_at,omitzero"`
}
