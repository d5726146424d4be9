package application

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

const (
	kdfArgon2id = "argon2id"
	saltSize    = 16
	minSaltSize = 8

	// Bounds on stored argon2id parameters. Memory is in KiB.
	maxKDFTime    = 64
	minKDFMemory  = 1024
	maxKDFMemory  = 1024 * 1024
	maxKDFThreads = 64
)

// vaultAAD binds ciphertexts to this record format.
var vaultAAD = []byte("autorecord/secret-record/v1")

// DefaultKDFParams returns the argon2id parameters used for new records.
func DefaultKDFParams() model.KDFParams {
	return model.KDFParams{
		Algorithm: kdfArgon2id,
		Time:      3,
		Memory:    64 * 1024,
		Threads:   4,
		KeyLen:    32,
	}
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("rand salt: %w", err)
	}
	return salt, nil
}

func deriveKey(password, salt []byte, p model.KDFParams) ([]byte, error) {
	if p.Algorithm != kdfArgon2id {
		return nil, fmt.Errorf("%w: kdf %q", ErrUnsupportedVersion, p.Algorithm)
	}
	if p.KeyLen != 32 {
		return nil, fmt.Errorf("%w: key length %d", ErrUnsupportedVersion, p.KeyLen)
	}
	if err := checkKDFParams(p, salt); err != nil {
		return nil, err
	}
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, p.KeyLen), nil
}

// checkKDFParams rejects parameters that would make argon2 panic or
// allocate without bound.
func checkKDFParams(p model.KDFParams, salt []byte) error {
	switch {
	case p.Time < 1 || p.Time > maxKDFTime:
		return fmt.Errorf("%w: kdf time %d outside [1, %d]", ErrMalformedRecord, p.Time, maxKDFTime)
	case p.Memory < minKDFMemory || p.Memory > maxKDFMemory:
		return fmt.Errorf("%w: kdf memory %d KiB outside [%d, %d]", ErrMalformedRecord, p.Memory, minKDFMemory, maxKDFMemory)
	case p.Threads < 1 || p.Threads > maxKDFThreads:
		return fmt.Errorf("%w: kdf threads %d outside [1, %d]", ErrMalformedRecord, p.Threads, maxKDFThreads)
	case len(salt) < minSaltSize:
		return fmt.Errorf("%w: salt of %d bytes", ErrMalformedRecord, len(salt))
	}
	return nil
}

// sealSecret encrypts plaintext with AES-256-GCM under key and returns the random
// nonce and the ciphertext with its tag.
func sealSecret(key, plaintext []byte) ([]byte, []byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("rand nonce: %w", err)
	}

	return nonce, gcm.Seal(nil, nonce, plaintext, vaultAAD), nil
}

// openSecret authenticates and decrypts a sealed secret. Any authentication failure
// is reported as ErrWrongPassword.
func openSecret(key, nonce, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce size", ErrMalformedRecord)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, vaultAAD)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
