package vaultfile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

func testRecord() model.SecretRecord {
	return model.SecretRecord{
		Version: model.SecretFormatVersion,
		KDF: model.KDFParams{
			Algorithm: "argon2id", Time: 1, Memory: 1024, Threads: 1, KeyLen: 32,
		},
		Salt:       []byte("0123456789abcdef"),
		Nonce:      []byte("nonce-12byte"),
		Ciphertext: []byte("sealed"),
		Address:    "0x1111111111111111111111111111111111111111",
		CreatedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestStore_Load_Missing(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "vault.json"))

	rec, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vault.json")
	s := New(path)
	ctx := context.Background()

	want := testRecord()
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_Save_Replaces(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "vault.json"))
	ctx := context.Background()

	first := testRecord()
	require.NoError(t, s.Save(ctx, first))

	second := testRecord()
	second.Ciphertext = []byte("rotated")
	second.RotatedAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("rotated"), got.Ciphertext)
	assert.True(t, second.RotatedAt.Equal(got.RotatedAt))
}

func TestStore_Load_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := New(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode vault file")
}

func TestStore_Load_ContextCanceledWhileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	holder := New(path)
	require.NoError(t, holder.acquire(context.Background()))
	defer holder.release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := New(path).Load(ctx)
	require.Error(t, err)
}

func TestStore_Create(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	s := New(path)
	ctx := context.Background()

	first := testRecord()
	require.NoError(t, s.Create(ctx, first))

	second := testRecord()
	second.Ciphertext = []byte("other")
	err := s.Create(ctx, second)
	require.ErrorIs(t, err, driven.ErrSecretExists)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), got.Ciphertext)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_Create_ConcurrentStoresOneWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := testRecord()
			rec.Ciphertext = []byte{byte(i)}
			errs[i] = New(path).Create(ctx, rec)
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, driven.ErrSecretExists)
	}
	assert.Equal(t, 1, created)
}

func TestStore_SharedAcrossGoroutines(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "vault.json"))
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testRecord()))

	require.NoError(t, s.acquire(ctx))
	acquired := make(chan struct{})
	go func() {
		if err := s.acquire(ctx); err == nil {
			close(acquired)
			s.release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired a lock the first still holds")
	case <-time.After(100 * time.Millisecond):
	}

	s.release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second goroutine never acquired the lock")
	}
}
