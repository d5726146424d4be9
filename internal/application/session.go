package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
)

// Unlocker decrypts the signing secret. *Vault satisfies it.
type Unlocker interface {
	Unlock(ctx context.Context, password []byte) ([]byte, error)
}

// SessionCache holds the decrypted secret for a bounded window after unlock.
// Expiry is checked lazily on every access; there is no background timer.
// All access is serialized, so callers always observe one consistent
// secret and expiry pair.
type SessionCache struct {
	vault  Unlocker
	policy PolicyReader
	clock  clock.Clock

	mu        sync.Mutex
	secret    []byte
	expiresAt time.Time
}

// NewSessionCache creates an empty SessionCache. The session length is read
// from the current policy at each unlock.
func NewSessionCache(vault Unlocker, policy PolicyReader, clk clock.Clock) *SessionCache {
	if clk == nil {
		clk = clock.WallClock
	}
	return &SessionCache{vault: vault, policy: policy, clock: clk}
}

// GetOrUnlock returns a copy of the cached secret if the session is
// unexpired. Otherwise it unlocks the vault with password and starts a new
// session. An empty password with no live session yields ErrNoSession.
// Callers should clear the returned slice when done.
func (s *SessionCache) GetOrUnlock(ctx context.Context, password []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.liveLocked() {
		return cloneBytes(s.secret), nil
	}
	if len(password) == 0 {
		return nil, ErrNoSession
	}

	secret, err := s.vault.Unlock(ctx, password)
	if err != nil {
		return nil, err
	}

	s.wipeLocked()
	s.secret = secret
	s.expiresAt = s.clock.Now().Add(s.policy.Current().SessionTimeout)
	slog.Info("session unlocked", "expires_at", s.expiresAt)

	return cloneBytes(s.secret), nil
}

// Unlock starts a new session even if one is live, replacing it as a whole.
func (s *SessionCache) Unlock(ctx context.Context, password []byte) (time.Time, error) {
	if len(password) == 0 {
		return time.Time{}, ErrWrongPassword
	}

	secret, err := s.vault.Unlock(ctx, password)
	if err != nil {
		return time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipeLocked()
	s.secret = secret
	s.expiresAt = s.clock.Now().Add(s.policy.Current().SessionTimeout)
	slog.Info("session unlocked", "expires_at", s.expiresAt)
	return s.expiresAt, nil
}

// Get returns a copy of the cached secret, or ErrNoSession.
func (s *SessionCache) Get(ctx context.Context) ([]byte, error) {
	return s.GetOrUnlock(ctx, nil)
}

// Lock discards the session immediately.
func (s *SessionCache) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret != nil {
		slog.Info("session locked")
	}
	s.wipeLocked()
}

// TimeRemaining returns how long the current session stays valid, or zero.
func (s *SessionCache) TimeRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked() {
		return 0
	}
	return s.expiresAt.Sub(s.clock.Now())
}

// Active reports whether a live session exists.
func (s *SessionCache) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked()
}

// liveLocked reports whether the session is unexpired, discarding it if not.
// s.mu must be held.
func (s *SessionCache) liveLocked() bool {
	if s.secret == nil {
		return false
	}
	if !s.clock.Now().Before(s.expiresAt) {
		slog.Info("session expired")
		s.wipeLocked()
		return false
	}
	return true
}

func (s *SessionCache) wipeLocked() {
	clear(s.secret)
	s.secret = nil
	s.expiresAt = time.Time{}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
