// Package application contains use-case orchestration services.
package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/semaphore"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

// DefaultScanInterval is the periodic scan interval.
const DefaultScanInterval = 5 * time.Minute

// notifyBuffer bounds queued inline triggers. Overflow is dropped; the next
// periodic scan picks those candidates up.
const notifyBuffer = 64

// scanRequest represents a manual scan trigger.
type scanRequest struct {
	maxAge time.Duration
	limit  int
	done   chan scanResponse
}

type scanResponse struct {
	result ScanResult
	err    error
}

// CandidateOutcome pairs a candidate id with the result of its attempt.
type CandidateOutcome struct {
	CandidateID string
	Outcome     model.Outcome
}

// ScanResult summarizes one scan invocation.
type ScanResult struct {
	Found    int
	Outcomes []CandidateOutcome
	Errors   int
	Duration time.Duration
}

// ScanWorkerConfig configures a ScanWorker. Zero values select defaults.
type ScanWorkerConfig struct {
	Interval    time.Duration
	MaxAge      time.Duration
	Limit       int
	Concurrency int
	Clock       clock.Clock
	Metrics     *Metrics
}

// ScanWorker runs the scanner on a fixed interval, on manual triggers, and
// inline for newly created candidates, feeding each candidate to the Recorder.
type ScanWorker struct {
	scanner  *Scanner
	recorder *Recorder
	policy   PolicyReader
	clock    clock.Clock
	metrics  *Metrics

	interval    time.Duration
	maxAge      time.Duration
	limit       int
	concurrency int64

	scanCh   chan scanRequest
	notifyCh chan string
	inline   sync.WaitGroup
}

// NewScanWorker creates a ScanWorker.
func NewScanWorker(scanner *Scanner, recorder *Recorder, policy PolicyReader, cfg ScanWorkerConfig) *ScanWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultScanInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	maxAge, limit := normalizeScanArgs(cfg.MaxAge, cfg.Limit)
	return &ScanWorker{
		scanner:     scanner,
		recorder:    recorder,
		policy:      policy,
		clock:       cfg.Clock,
		metrics:     cfg.Metrics,
		interval:    cfg.Interval,
		maxAge:      maxAge,
		limit:       limit,
		concurrency: int64(cfg.Concurrency),
		scanCh:      make(chan scanRequest),
		notifyCh:    make(chan string, notifyBuffer),
	}
}

// Start runs an immediate scan, then scans on the configured interval. It
// also serves manual scan triggers and inline notifications. Periodic scans
// are skipped while the policy does not permit automatic recording. Start
// blocks until the context is canceled and inline work has drained.
func (w *ScanWorker) Start(ctx context.Context) {
	w.periodic(ctx)

	ticker := w.clock.NewTimer(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.inline.Wait()
			slog.Info("scan worker stopped")
			return
		case <-ticker.Chan():
			w.periodic(ctx)
			ticker.Reset(w.interval)
		case req := <-w.scanCh:
			result, err := w.scan(ctx, req.maxAge, req.limit)
			req.done <- scanResponse{result: result, err: err}
		case id := <-w.notifyCh:
			w.inline.Add(1)
			go func() {
				defer w.inline.Done()
				if _, err := w.recorder.RecordOne(ctx, id); err != nil {
					slog.Error("inline record failed", "candidate", id, "error", err)
				}
			}()
		}
	}
}

// TriggerScan runs one scan outside the interval and returns its result. It
// blocks until the scan completes or the context is canceled.
func (w *ScanWorker) TriggerScan(ctx context.Context, maxAge time.Duration, limit int) (ScanResult, error) {
	done := make(chan scanResponse, 1)
	req := scanRequest{maxAge: maxAge, limit: limit, done: done}

	select {
	case w.scanCh <- req:
	case <-ctx.Done():
		return ScanResult{}, ctx.Err()
	}

	select {
	case resp := <-done:
		return resp.result, resp.err
	case <-ctx.Done():
		return ScanResult{}, ctx.Err()
	}
}

// Notify schedules an inline attempt for a newly created candidate without
// blocking the caller.
func (w *ScanWorker) Notify(candidateID string) {
	select {
	case w.notifyCh <- candidateID:
	default:
		slog.Warn("inline trigger queue full, leaving candidate to periodic scan", "candidate", candidateID)
	}
}

func (w *ScanWorker) periodic(ctx context.Context) {
	if !w.policy.Current().Automatic() {
		slog.Debug("automatic recording off, periodic scan skipped")
		return
	}
	if _, err := w.scan(ctx, w.maxAge, w.limit); err != nil {
		slog.Error("scan cycle failed", "error", err)
	}
}

// scan finds candidates and records them with bounded concurrency. A
// failure on one candidate never stops the others.
func (w *ScanWorker) scan(ctx context.Context, maxAge time.Duration, limit int) (ScanResult, error) {
	start := w.clock.Now()
	if maxAge <= 0 {
		maxAge = w.maxAge
	}
	if limit <= 0 {
		limit = w.limit
	}

	candidates, err := w.scanner.FindCandidates(ctx, maxAge, limit)
	if err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{
		Found:    len(candidates),
		Outcomes: make([]CandidateOutcome, len(candidates)),
	}

	sem := semaphore.NewWeighted(w.concurrency)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i, c := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			out, err := w.recorder.RecordOne(ctx, c.ID)
			if err != nil {
				mu.Lock()
				result.Errors++
				mu.Unlock()
			}
			result.Outcomes[i] = CandidateOutcome{CandidateID: c.ID, Outcome: out}
		}()
	}
	wg.Wait()

	result.Duration = w.clock.Now().Sub(start)
	w.metrics.observeScan(result.Duration)

	slog.Info("scan cycle complete",
		"found", result.Found,
		"errors", result.Errors,
		"duration", result.Duration.Round(time.Millisecond),
	)

	return result, ctx.Err()
}
