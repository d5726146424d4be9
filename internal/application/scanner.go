package application

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

// Scan defaults and bounds.
const (
	DefaultScanLimit    = 5
	MaxScanLimit        = 50
	DefaultScanMaxAge   = 24 * time.Hour
	DefaultAttemptGrace = 10 * time.Minute
)

// Scanner finds candidates eligible for automatic recording. It only reads;
// eligibility is derived entirely from persisted state, so repeated or
// overlapping scans return consistent results.
type Scanner struct {
	store driven.CandidateStore
	clock clock.Clock
	grace time.Duration
	retry RetryPolicy
}

// NewScanner creates a Scanner. grace is how long an attempting or attempted
// candidate is left alone before it is treated as abandoned.
func NewScanner(store driven.CandidateStore, clk clock.Clock, grace time.Duration, rp RetryPolicy) *Scanner {
	if clk == nil {
		clk = clock.WallClock
	}
	if grace <= 0 {
		grace = DefaultAttemptGrace
	}
	return &Scanner{store: store, clock: clk, grace: grace, retry: rp.withDefaults()}
}

// FindCandidates returns up to limit eligible candidates created within
// maxAge, oldest first.
func (s *Scanner) FindCandidates(ctx context.Context, maxAge time.Duration, limit int) ([]model.Candidate, error) {
	maxAge, limit = normalizeScanArgs(maxAge, limit)
	now := s.clock.Now()

	candidates, err := s.store.ListEligible(ctx, model.EligibilityQuery{
		Now:          now,
		CreatedAfter: now.Add(-maxAge),
		StaleBefore:  now.Add(-s.grace),
		MaxAttempts:  s.retry.MaxAttempts,
		Limit:        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list eligible candidates: %w", err)
	}
	return candidates, nil
}

func normalizeScanArgs(maxAge time.Duration, limit int) (time.Duration, int) {
	if maxAge <= 0 {
		maxAge = DefaultScanMaxAge
	}
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	return maxAge, min(limit, MaxScanLimit)
}
