package application_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/autorecord/internal/adapter/driven/vaultfile"
	"github.com/ericfisherdev/autorecord/internal/application"
	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

// fastKDF keeps argon2id cheap in tests.
var fastKDF = model.KDFParams{Algorithm: "argon2id", Time: 1, Memory: 1024, Threads: 1, KeyLen: 32}

type deriverFunc func(secret []byte) (string, error)

func (f deriverFunc) SenderAddress(secret []byte) (string, error) { return f(secret) }

// addressFromSecret pretends the address is the secret itself.
var addressFromSecret = deriverFunc(func(secret []byte) (string, error) {
	return "0x" + string(secret), nil
})

func newTestVault(store *memSecretStore, clk *testclock.Clock, expected string) *application.Vault {
	return application.NewVault(store, application.VaultConfig{
		KDF:             fastKDF,
		Clock:           clk,
		Deriver:         addressFromSecret,
		ExpectedAddress: expected,
	})
}

func TestVault_InitializeAndUnlock(t *testing.T) {
	ctx := context.Background()
	store := &memSecretStore{}
	v := newTestVault(store, testclock.NewClock(testNow), "")

	require.NoError(t, v.Initialize(ctx, []byte("correct horse"), []byte("abc123")))

	rec := store.rec
	require.NotNil(t, rec)
	assert.Equal(t, model.SecretFormatVersion, rec.Version)
	assert.Equal(t, fastKDF, rec.KDF)
	assert.Len(t, rec.Salt, 16)
	assert.NotContains(t, string(rec.Ciphertext), "abc123")
	assert.Equal(t, "0xabc123", rec.Address)
	assert.Equal(t, testNow, rec.CreatedAt)

	secret, err := v.Unlock(ctx, []byte("correct horse"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc123"), secret)
}

func TestVault_InitializeTwice(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(&memSecretStore{}, testclock.NewClock(testNow), "")

	require.NoError(t, v.Initialize(ctx, []byte("correct horse"), []byte("abc")))
	err := v.Initialize(ctx, []byte("another password"), []byte("def"))
	assert.ErrorIs(t, err, application.ErrAlreadyInitialized)
}

func TestVault_ConcurrentInitializeOneWins(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.json")
	passwords := []string{"first password", "second password"}

	errs := make([]error, len(passwords))
	var wg sync.WaitGroup
	for i, pw := range passwords {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := application.NewVault(vaultfile.New(path), application.VaultConfig{KDF: fastKDF})
			errs[i] = v.Initialize(ctx, []byte(pw), []byte("abc"))
		}()
	}
	wg.Wait()

	var winner string
	for i, err := range errs {
		if err == nil {
			require.Empty(t, winner, "both initializations succeeded")
			winner = passwords[i]
			continue
		}
		assert.ErrorIs(t, err, application.ErrAlreadyInitialized)
	}
	require.NotEmpty(t, winner)

	secret, err := application.NewVault(vaultfile.New(path), application.VaultConfig{KDF: fastKDF}).
		Unlock(ctx, []byte(winner))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), secret)
}

func TestVault_WeakPassword(t *testing.T) {
	v := newTestVault(&memSecretStore{}, testclock.NewClock(testNow), "")

	err := v.Initialize(context.Background(), []byte("short"), []byte("abc"))
	assert.ErrorIs(t, err, application.ErrWeakPassword)
}

func TestVault_UnlockNotInitialized(t *testing.T) {
	v := newTestVault(&memSecretStore{}, testclock.NewClock(testNow), "")

	_, err := v.Unlock(context.Background(), []byte("correct horse"))
	assert.ErrorIs(t, err, application.ErrNotInitialized)
}

func TestVault_WrongPassword(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(&memSecretStore{}, testclock.NewClock(testNow), "")
	require.NoError(t, v.Initialize(ctx, []byte("correct horse"), []byte("abc")))

	secret, err := v.Unlock(ctx, []byte("battery staple"))
	assert.ErrorIs(t, err, application.ErrWrongPassword)
	assert.Nil(t, secret)
	assert.Equal(t, application.ClassAuthentication, application.Classify(err))
}

func TestVault_LockoutAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(testNow)
	v := newTestVault(&memSecretStore{}, clk, "")
	require.NoError(t, v.Initialize(ctx, []byte("correct horse"), []byte("abc")))

	for range 3 {
		_, err := v.Unlock(ctx, []byte("battery staple"))
		require.ErrorIs(t, err, application.ErrWrongPassword)
	}

	// Even the right password is refused during the lockout.
	_, err := v.Unlock(ctx, []byte("correct horse"))
	assert.ErrorIs(t, err, application.ErrTooManyAttempts)

	st, err := v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(30*time.Minute), st.LockedUntil)

	clk.Advance(30 * time.Minute)
	secret, err := v.Unlock(ctx, []byte("correct horse"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), secret)
}

func TestVault_SuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(&memSecretStore{}, testclock.NewClock(testNow), "")
	require.NoError(t, v.Initialize(ctx, []byte("correct horse"), []byte("abc")))

	for range 2 {
		_, _ = v.Unlock(ctx, []byte("battery staple"))
	}
	_, err := v.Unlock(ctx, []byte("correct horse"))
	require.NoError(t, err)

	for range 2 {
		_, _ = v.Unlock(ctx, []byte("battery staple"))
	}
	_, err = v.Unlock(ctx, []byte("correct horse"))
	assert.NoError(t, err)
}

func TestVault_Rotate(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(testNow)
	store := &memSecretStore{}
	v := newTestVault(store, clk, "")
	require.NoError(t, v.Initialize(ctx, []byte("correct horse"), []byte("abc")))
	oldSalt := store.rec.Salt

	clk.Advance(time.Hour)
	require.NoError(t, v.Rotate(ctx, []byte("correct horse"), []byte("battery staple")))

	assert.NotEqual(t, oldSalt, store.rec.Salt)
	assert.Equal(t, testNow, store.rec.CreatedAt)
	assert.Equal(t, testNow.Add(time.Hour), store.rec.RotatedAt)
	assert.Equal(t, "0xabc", store.rec.Address)

	_, err := v.Unlock(ctx, []byte("correct horse"))
	assert.ErrorIs(t, err, application.ErrWrongPassword)

	secret, err := v.Unlock(ctx, []byte("battery staple"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), secret)
}

func TestVault_RotateWrongOldPassword(t *testing.T) {
	ctx := context.Background()
	store := &memSecretStore{}
	v := newTestVault(store, testclock.NewClock(testNow), "")
	require.NoError(t, v.Initialize(ctx, []byte("correct horse"), []byte("abc")))

	err := v.Rotate(ctx, []byte("nope nope nope"), []byte("battery staple"))
	assert.ErrorIs(t, err, application.ErrWrongPassword)
	assert.Equal(t, 1, store.saves)
}

func TestVault_ExpectedAddress(t *testing.T) {
	ctx := context.Background()

	v := newTestVault(&memSecretStore{}, testclock.NewClock(testNow), "0xABC")
	require.NoError(t, v.Initialize(ctx, []byte("correct horse"), []byte("abc")), "address match is case-insensitive")

	other := newTestVault(&memSecretStore{}, testclock.NewClock(testNow), "0xdef")
	err := other.Initialize(ctx, []byte("correct horse"), []byte("abc"))
	assert.ErrorIs(t, err, application.ErrWalletMismatch)
}

func TestVault_UnlockVerifiesExpectedAddress(t *testing.T) {
	ctx := context.Background()
	store := &memSecretStore{}
	require.NoError(t, newTestVault(store, testclock.NewClock(testNow), "").
		Initialize(ctx, []byte("correct horse"), []byte("abc")))

	// Same record, daemon now configured for another wallet.
	v := newTestVault(store, testclock.NewClock(testNow), "0xdef")
	_, err := v.Unlock(ctx, []byte("correct horse"))
	assert.ErrorIs(t, err, application.ErrWalletMismatch)
	assert.Equal(t, application.ClassConfiguration, application.Classify(err))
}

func TestVault_UnsupportedVersion(t *testing.T) {
	ctx := context.Background()
	store := &memSecretStore{}
	v := newTestVault(store, testclock.NewClock(testNow), "")
	require.NoError(t, v.Initialize(ctx, []byte("correct horse"), []byte("abc")))
	store.rec.Version = 99

	_, err := v.Unlock(ctx, []byte("correct horse"))
	assert.ErrorIs(t, err, application.ErrUnsupportedVersion)
}

func TestVault_UnlockRejectsOutOfRangeKDF(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *model.KDFParams)
	}{
		{name: "zero threads", mutate: func(p *model.KDFParams) { p.Threads = 0 }},
		{name: "zero time", mutate: func(p *model.KDFParams) { p.Time = 0 }},
		{name: "huge memory", mutate: func(p *model.KDFParams) { p.Memory = 1 << 30 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := &memSecretStore{}
			v := newTestVault(store, testclock.NewClock(testNow), "")
			require.NoError(t, v.Initialize(ctx, []byte("correct horse"), []byte("abc")))
			tt.mutate(&store.rec.KDF)

			var err error
			require.NotPanics(t, func() { _, err = v.Unlock(ctx, []byte("correct horse")) })
			assert.ErrorIs(t, err, application.ErrMalformedRecord)
			assert.Equal(t, application.ClassConfiguration, application.Classify(err))

			st, err := v.Status(ctx)
			require.NoError(t, err)
			assert.True(t, st.LockedUntil.IsZero(), "a malformed record is not a wrong password")
		})
	}
}

func TestVault_Status(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(&memSecretStore{}, testclock.NewClock(testNow), "")

	st, err := v.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Initialized)

	ok, err := v.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, v.Initialize(ctx, []byte("correct horse"), []byte("abc")))

	st, err = v.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Initialized)
	assert.Equal(t, model.SecretFormatVersion, st.Version)
	assert.Equal(t, "0xabc", st.Address)
	assert.True(t, st.LockedUntil.IsZero())
}
