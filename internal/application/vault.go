package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

const (
	minPasswordLength = 8
	maxUnlockFailures = 3
	unlockLockout     = 30 * time.Minute
)

// AddressDeriver derives the wallet address a secret signs for.
// driven.LedgerClient satisfies it.
type AddressDeriver interface {
	SenderAddress(secret []byte) (string, error)
}

// VaultConfig configures a Vault. Zero values select defaults.
type VaultConfig struct {
	KDF   model.KDFParams
	Clock clock.Clock
	// Deriver, when set, records the wallet address at initialization and
	// lets Unlock verify ExpectedAddress.
	Deriver         AddressDeriver
	ExpectedAddress string
}

// VaultStatus describes the stored record without decrypting it.
type VaultStatus struct {
	Initialized bool
	Version     int
	Address     string
	CreatedAt   time.Time
	RotatedAt   time.Time
	LockedUntil time.Time
}

// Vault encrypts, stores and decrypts the signing secret under a
// password-derived key. Plaintext secrets and derived keys are never
// persisted or logged.
type Vault struct {
	store    driven.SecretStore
	kdf      model.KDFParams
	clock    clock.Clock
	deriver  AddressDeriver
	expected string

	mu          sync.Mutex
	failures    int
	lockedUntil time.Time
}

// NewVault creates a Vault over store.
func NewVault(store driven.SecretStore, cfg VaultConfig) *Vault {
	if cfg.KDF.Algorithm == "" {
		cfg.KDF = DefaultKDFParams()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Vault{
		store:    store,
		kdf:      cfg.KDF,
		clock:    cfg.Clock,
		deriver:  cfg.Deriver,
		expected: cfg.ExpectedAddress,
	}
}

// Initialize seals secret under password. It fails with ErrAlreadyInitialized
// if a record exists.
func (v *Vault) Initialize(ctx context.Context, password, secret []byte) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, minPasswordLength)
	}

	existing, err := v.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load vault: %w", err)
	}
	if existing != nil {
		return ErrAlreadyInitialized
	}

	address, err := v.addressOf(secret)
	if err != nil {
		return err
	}

	rec, err := v.sealRecord(password, secret)
	if err != nil {
		return err
	}
	rec.Address = address
	rec.CreatedAt = v.clock.Now().UTC()

	err = v.store.Create(ctx, rec)
	if errors.Is(err, driven.ErrSecretExists) {
		return ErrAlreadyInitialized
	}
	if err != nil {
		return fmt.Errorf("create vault: %w", err)
	}

	slog.Info("vault initialized", "address", address)
	return nil
}

// Unlock decrypts and returns the secret. The caller owns the returned slice
// and should clear it when done.
func (v *Vault) Unlock(ctx context.Context, password []byte) ([]byte, error) {
	if until, locked := v.lockout(); locked {
		return nil, fmt.Errorf("%w: retry after %s", ErrTooManyAttempts, until.Format(time.RFC3339))
	}

	rec, err := v.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vault: %w", err)
	}
	if rec == nil {
		return nil, ErrNotInitialized
	}

	secret, err := v.openRecord(password, *rec)
	if errors.Is(err, ErrWrongPassword) {
		v.recordFailure()
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err := v.verifyAddress(secret); err != nil {
		clear(secret)
		return nil, err
	}

	v.resetFailures()
	return secret, nil
}

// Rotate re-encrypts the secret under newPassword with a fresh salt and the
// current KDF parameters.
func (v *Vault) Rotate(ctx context.Context, oldPassword, newPassword []byte) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, minPasswordLength)
	}

	secret, err := v.Unlock(ctx, oldPassword)
	if err != nil {
		return err
	}
	defer clear(secret)

	old, err := v.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load vault: %w", err)
	}

	rec, err := v.sealRecord(newPassword, secret)
	if err != nil {
		return err
	}
	rec.Address = old.Address
	rec.CreatedAt = old.CreatedAt
	rec.RotatedAt = v.clock.Now().UTC()

	if err := v.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save vault: %w", err)
	}

	slog.Info("vault password rotated", "address", rec.Address)
	return nil
}

// Exists reports whether a record has been created.
func (v *Vault) Exists(ctx context.Context) (bool, error) {
	rec, err := v.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load vault: %w", err)
	}
	return rec != nil, nil
}

// Status describes the stored record.
func (v *Vault) Status(ctx context.Context) (VaultStatus, error) {
	rec, err := v.store.Load(ctx)
	if err != nil {
		return VaultStatus{}, fmt.Errorf("load vault: %w", err)
	}

	st := VaultStatus{}
	if until, locked := v.lockout(); locked {
		st.LockedUntil = until
	}
	if rec == nil {
		return st, nil
	}

	st.Initialized = true
	st.Version = rec.Version
	st.Address = rec.Address
	st.CreatedAt = rec.CreatedAt
	st.RotatedAt = rec.RotatedAt
	return st, nil
}

func (v *Vault) sealRecord(password, secret []byte) (model.SecretRecord, error) {
	salt, err := newSalt()
	if err != nil {
		return model.SecretRecord{}, err
	}

	key, err := deriveKey(password, salt, v.kdf)
	if err != nil {
		return model.SecretRecord{}, err
	}
	defer clear(key)

	nonce, ciphertext, err := sealSecret(key, secret)
	if err != nil {
		return model.SecretRecord{}, err
	}

	return model.SecretRecord{
		Version:    model.SecretFormatVersion,
		KDF:        v.kdf,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

func (v *Vault) openRecord(password []byte, rec model.SecretRecord) ([]byte, error) {
	if rec.Version != model.SecretFormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, rec.Version)
	}

	key, err := deriveKey(password, rec.Salt, rec.KDF)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	return openSecret(key, rec.Nonce, rec.Ciphertext)
}

func (v *Vault) addressOf(secret []byte) (string, error) {
	if v.deriver == nil {
		return "", nil
	}
	addr, err := v.deriver.SenderAddress(secret)
	if err != nil {
		return "", err
	}
	if v.expected != "" && !strings.EqualFold(addr, v.expected) {
		return "", fmt.Errorf("%w: secret signs for %s", ErrWalletMismatch, addr)
	}
	return addr, nil
}

func (v *Vault) verifyAddress(secret []byte) error {
	if v.expected == "" {
		return nil
	}
	_, err := v.addressOf(secret)
	return err
}

func (v *Vault) lockout() (time.Time, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lockedUntil.IsZero() {
		return time.Time{}, false
	}
	if !v.clock.Now().Before(v.lockedUntil) {
		v.lockedUntil = time.Time{}
		v.failures = 0
		return time.Time{}, false
	}
	return v.lockedUntil, true
}

func (v *Vault) recordFailure() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures++
	slog.Warn("vault unlock failed", "consecutive_failures", v.failures)
	if v.failures >= maxUnlockFailures {
		v.lockedUntil = v.clock.Now().Add(unlockLockout)
		slog.Warn("vault locked out after repeated failures", "until", v.lockedUntil)
	}
}

func (v *Vault) resetFailures() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures = 0
	v.lockedUntil = time.Time{}
}
