// Package vaultfile stores the encrypted Secret Record as a JSON file kept
// apart from the domain database.
package vaultfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SecretStore = (*Store)(nil)

const lockRetryDelay = 50 * time.Millisecond

// Store persists one Secret Record at path. A sibling ".lock" file serializes
// access between the daemon and the CLI; mu serializes goroutines sharing
// this Store, since a flock handle that already holds the lock grants it
// again.
type Store struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// New creates a Store for the record at path.
func New(path string) *Store {
	return &Store{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the record's file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the record. Returns (nil, nil) if the file does not exist.
func (s *Store) Load(ctx context.Context) (*model.SecretRecord, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vault file: %w", err)
	}

	var rec model.SecretRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode vault file: %w", err)
	}
	return &rec, nil
}

// Create writes the record unless one already exists, in which case it
// returns driven.ErrSecretExists. The existence check and the write happen
// under a single lock acquisition.
func (s *Store) Create(ctx context.Context, rec model.SecretRecord) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	_, err := os.Stat(s.path)
	if err == nil {
		return driven.ErrSecretExists
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat vault file: %w", err)
	}
	return s.write(rec)
}

// Save replaces the record. The write goes to a temporary file that is
// renamed over the old one, so readers never see a torn record.
func (s *Store) Save(ctx context.Context, rec model.SecretRecord) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	return s.write(rec)
}

// write must be called with the lock held.
func (s *Store) write(rec model.SecretRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode vault file: %w", err)
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write vault file: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("restrict vault file permissions: %w", err)
	}
	return nil
}

func (s *Store) acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}

	s.mu.Lock()
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("lock vault file: %w", err)
	}
	if !locked {
		s.mu.Unlock()
		return fmt.Errorf("lock vault file: %s is held by another process", s.lock.Path())
	}
	return nil
}

func (s *Store) release() {
	_ = s.lock.Unlock()
	s.mu.Unlock()
}
