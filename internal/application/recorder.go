package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

// DefaultConfirmTimeout bounds the wait for a receipt after broadcast.
const DefaultConfirmTimeout = 120 * time.Second

// maxSubmitTries bounds re-signing after a nonce conflict within one attempt.
const maxSubmitTries = 2

// SecretSource hands out a copy of the unlocked signing secret.
// *SessionCache satisfies it.
type SecretSource interface {
	Get(ctx context.Context) ([]byte, error)
}

// RecorderConfig configures a Recorder. Zero values select defaults.
type RecorderConfig struct {
	Grace          time.Duration
	ConfirmTimeout time.Duration
	Retry          RetryPolicy
	Clock          clock.Clock
	Metrics        *Metrics
}

// Recorder drives one candidate at a time through
// unattempted -> attempting -> attempted -> recorded, or to failed.
type Recorder struct {
	store   driven.CandidateStore
	ledger  driven.LedgerClient
	session SecretSource
	policy  PolicyReader
	locks   *keyedLock

	clock          clock.Clock
	grace          time.Duration
	confirmTimeout time.Duration
	retry          RetryPolicy
	metrics        *Metrics
}

// NewRecorder creates a Recorder.
func NewRecorder(
	store driven.CandidateStore,
	ledger driven.LedgerClient,
	session SecretSource,
	policy PolicyReader,
	cfg RecorderConfig,
) *Recorder {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultAttemptGrace
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &Recorder{
		store:          store,
		ledger:         ledger,
		session:        session,
		policy:         policy,
		locks:          newKeyedLock(),
		clock:          cfg.Clock,
		grace:          cfg.Grace,
		confirmTimeout: cfg.ConfirmTimeout,
		retry:          cfg.Retry.withDefaults(),
		metrics:        cfg.Metrics,
	}
}

// RecordOne makes one recording attempt for the candidate with the given id.
// Domain results (recorded, failed, skipped) are reported through the
// Outcome; the error is non-nil only when local state could not be read or
// written. A per-candidate lock is held for the whole call.
func (r *Recorder) RecordOne(ctx context.Context, id string) (model.Outcome, error) {
	return r.run(ctx, id, false)
}

// ForceRecord is the operator path: it ignores the enabled flag, the mode
// and the amount limit, but keeps every lifecycle guard and still needs an
// active session.
func (r *Recorder) ForceRecord(ctx context.Context, id string) (model.Outcome, error) {
	return r.run(ctx, id, true)
}

func (r *Recorder) run(ctx context.Context, id string, forced bool) (model.Outcome, error) {
	release, ok := r.locks.TryLock(id)
	if !ok {
		out := model.Skipped(model.SkipLocked)
		r.report(id, out)
		return out, nil
	}
	defer release()

	out, err := r.record(ctx, id, forced)
	if err != nil {
		slog.Error("record candidate failed", "candidate", id, "error", err)
		return out, err
	}
	r.report(id, out)
	return out, nil
}

func (r *Recorder) record(ctx context.Context, id string, forced bool) (model.Outcome, error) {
	c, err := r.store.Get(ctx, id)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("load candidate: %w", err)
	}
	if c == nil {
		return model.Skipped(model.SkipNotFound), nil
	}
	if c.Status == model.CandidateRecorded {
		return model.Skipped(model.SkipAlreadyRecorded), nil
	}

	if !forced {
		if skip, ok := r.policyGate(*c); !ok {
			return model.Skipped(skip), nil
		}
	}

	now := r.clock.Now()
	if skip, ok := r.preflight(*c, now); !ok {
		return model.Skipped(skip), nil
	}

	secret, err := r.session.Get(ctx)
	if err != nil {
		return model.Skipped(model.SkipNoSession), nil
	}
	defer clear(secret)

	sender, err := r.ledger.SenderAddress(secret)
	if err != nil {
		slog.Error("session secret is not a usable signing key", "error", err)
		return model.Skipped(model.SkipNoSession), nil
	}

	if c.Status != model.CandidateUnattempted && c.HasPendingReference() {
		out, done, err := r.reconcile(ctx, *c, now)
		if err != nil || done {
			return out, err
		}
	}

	if c.Status != model.CandidateUnattempted && r.retry.Exhausted(c.Attempts) {
		return r.exhausted(ctx, *c)
	}
	if c.Status == model.CandidateFailed && now.Before(c.NextAttemptAt) {
		return model.Skipped(model.SkipNotEligible), nil
	}

	return r.attempt(ctx, *c, sender, secret)
}

// policyGate applies the recording policy. The amount gate applies whatever
// the enabled flag says.
func (r *Recorder) policyGate(c model.Candidate) (model.SkipReason, bool) {
	p := r.policy.Current()
	if c.Amount > p.MaxAutoAmount {
		return model.SkipAmountExceedsLimit, false
	}
	if !p.Enabled {
		return model.SkipDisabled, false
	}
	if p.Mode != model.ModeAutomatic {
		return model.SkipManualMode, false
	}
	return "", true
}

// preflight rejects candidates that cannot be attempted without any remote call.
func (r *Recorder) preflight(c model.Candidate, now time.Time) (model.SkipReason, bool) {
	switch c.Status {
	case model.CandidateUnattempted:
		return "", true
	case model.CandidateAttempting:
		if !c.HasPendingReference() && !c.AttemptStartedAt.IsZero() && now.Sub(c.AttemptStartedAt) < r.grace {
			return model.SkipLocked, false
		}
		return "", true
	case model.CandidateAttempted:
		return "", true
	case model.CandidateFailed:
		if !c.FailureReason.Retryable() {
			return model.SkipNotEligible, false
		}
		return "", true
	default:
		return model.SkipNotEligible, false
	}
}

// exhausted handles a candidate whose retry budget is used up. An abandoned
// in-flight attempt is closed out as failed. A failed candidate that still
// holds an unverified reference keeps being checked, at most once per
// maximum backoff.
func (r *Recorder) exhausted(ctx context.Context, c model.Candidate) (model.Outcome, error) {
	if c.Status == model.CandidateFailed {
		if c.HasPendingReference() {
			next := r.clock.Now().Add(r.retry.MaxBackoff)
			if _, err := r.store.Transition(ctx, c.ID, []model.CandidateStatus{model.CandidateFailed}, model.CandidateUpdate{
				Status:        model.CandidateFailed,
				NextAttemptAt: &next,
			}); err != nil {
				return model.Outcome{}, fmt.Errorf("defer verification of %s: %w", c.PendingReference(), err)
			}
		}
		return model.Skipped(model.SkipRetryExhausted), nil
	}
	reason := model.FailureInternal
	if c.HasPendingReference() {
		reason = model.FailureConfirmationTimeout
	}
	return r.failWith(ctx, c.ID, c.Status, c.Attempts, reason,
		fmt.Sprintf("abandoned after %d attempts", c.Attempts), c.PendingReference())
}

// reconcile checks whether an earlier broadcast for c already reached the
// ledger. It reports done when no new broadcast may be made this call.
func (r *Recorder) reconcile(ctx context.Context, c model.Candidate, now time.Time) (model.Outcome, bool, error) {
	ref := c.PendingReference()

	conf, err := r.ledger.Receipt(ctx, ref)
	if err != nil {
		out, ferr := r.fail(ctx, c.ID, c.Status, c.Attempts, err, "")
		return out, true, ferr
	}

	switch conf.Status {
	case model.ConfirmationSuccess:
		slog.Info("earlier broadcast confirmed", "candidate", c.ID, "tx", ref)
		out, err := r.markRecorded(ctx, c.ID, c.Status, ref)
		return out, true, err
	case model.ConfirmationReverted:
		out, err := r.failWith(ctx, c.ID, c.Status, c.Attempts, model.FailureReverted, "transaction reverted on-chain", ref)
		return out, true, err
	default:
		if !c.AttemptStartedAt.IsZero() && now.Sub(c.AttemptStartedAt) < r.grace {
			return model.Skipped(model.SkipAwaitingConfirmation), true, nil
		}
		slog.Warn("earlier broadcast not confirmed within grace period, attempting again",
			"candidate", c.ID, "tx", ref, "attempt_started_at", c.AttemptStartedAt)
		return model.Outcome{}, false, nil
	}
}

func (r *Recorder) attempt(ctx context.Context, c model.Candidate, sender string, secret []byte) (model.Outcome, error) {
	attempts := c.Attempts + 1
	started := r.clock.Now()
	noReason := model.FailureNone
	noError := ""

	ok, err := r.store.Transition(ctx, c.ID, []model.CandidateStatus{c.Status}, model.CandidateUpdate{
		Status:           model.CandidateAttempting,
		Attempts:         &attempts,
		AttemptStartedAt: &started,
		SenderAddress:    &sender,
		FailureReason:    &noReason,
		LastError:        &noError,
	})
	if err != nil {
		return model.Outcome{}, fmt.Errorf("begin attempt: %w", err)
	}
	if !ok {
		return model.Skipped(model.SkipLocked), nil
	}

	// From here on the candidate is ours; state writes must survive caller cancellation.
	persist := context.WithoutCancel(ctx)

	spec := txSpecFor(c, sender)
	fee, err := r.ledger.EstimateFee(ctx, spec)
	if err != nil {
		return r.fail(persist, c.ID, model.CandidateAttempting, attempts, err, "")
	}

	ref, err := r.broadcast(ctx, persist, c.ID, spec, fee, sender, secret)
	if err != nil {
		return r.fail(persist, c.ID, model.CandidateAttempting, attempts, err, "")
	}
	r.metrics.observeBroadcast()

	ok, err = r.store.Transition(persist, c.ID, []model.CandidateStatus{model.CandidateAttempting}, model.CandidateUpdate{
		Status:       model.CandidateAttempted,
		AttemptedRef: &ref,
	})
	if err != nil {
		return model.Outcome{}, fmt.Errorf("store attempted reference %s: %w", ref, err)
	}
	if !ok {
		return model.Outcome{}, fmt.Errorf("candidate %s left attempting during broadcast of %s", c.ID, ref)
	}
	slog.Info("transaction broadcast", "candidate", c.ID, "tx", ref, "attempt", attempts)

	broadcastAt := r.clock.Now()
	conf, err := r.ledger.AwaitConfirmation(ctx, ref, r.confirmTimeout)
	if err != nil {
		// The candidate stays attempted with its reference; a later scan reconciles it.
		return model.Outcome{}, fmt.Errorf("await confirmation of %s: %w", ref, err)
	}

	switch conf.Status {
	case model.ConfirmationSuccess:
		r.metrics.observeConfirmation(r.clock.Now().Sub(broadcastAt))
		return r.markRecorded(persist, c.ID, model.CandidateAttempted, conf.TxRef)
	case model.ConfirmationReverted:
		return r.failWith(persist, c.ID, model.CandidateAttempted, attempts, model.FailureReverted, "transaction reverted on-chain", ref)
	default:
		return r.failWith(persist, c.ID, model.CandidateAttempted, attempts, model.FailureConfirmationTimeout,
			fmt.Sprintf("no receipt within %s", r.confirmTimeout), ref)
	}
}

// broadcast signs with a freshly fetched nonce and submits. On a nonce
// conflict it refetches and re-signs rather than resubmitting the stale
// payload. Each signed hash is stored before its broadcast so a crash or a
// lost response can be reconciled later.
func (r *Recorder) broadcast(
	ctx, persist context.Context, id string, spec model.TxSpec, fee model.FeeEstimate, sender string, secret []byte,
) (string, error) {
	var lastErr error
	for try := 1; try <= maxSubmitTries; try++ {
		nonce, err := r.ledger.PendingNonce(ctx, sender)
		if err != nil {
			return "", err
		}

		stx, err := r.ledger.Sign(spec, fee, nonce, secret)
		if err != nil {
			return "", err
		}

		ok, err := r.store.Transition(persist, id, []model.CandidateStatus{model.CandidateAttempting}, model.CandidateUpdate{
			Status:    model.CandidateAttempting,
			SignedRef: &stx.Hash,
		})
		if err != nil {
			return "", fmt.Errorf("store signed reference: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("candidate %s left attempting before broadcast", id)
		}

		ref, err := r.ledger.Submit(ctx, stx)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		if !errors.Is(err, driven.ErrNonceConflict) {
			return "", err
		}
		slog.Warn("nonce conflict, re-signing with a fresh nonce", "candidate", id, "nonce", nonce, "try", try)
	}
	return "", lastErr
}

func (r *Recorder) markRecorded(ctx context.Context, id string, from model.CandidateStatus, ref string) (model.Outcome, error) {
	recordedAt := r.clock.Now().UTC()
	noReason := model.FailureNone

	ok, err := r.store.Transition(ctx, id, []model.CandidateStatus{from}, model.CandidateUpdate{
		Status:        model.CandidateRecorded,
		ConfirmedRef:  &ref,
		AttemptedRef:  &ref,
		RecordedAt:    &recordedAt,
		FailureReason: &noReason,
	})
	if err != nil {
		return model.Outcome{}, fmt.Errorf("store confirmed reference %s: %w", ref, err)
	}
	if !ok {
		return model.Outcome{}, fmt.Errorf("candidate %s left %s before confirmation of %s was stored", id, from, ref)
	}
	return model.Recorded(ref), nil
}

// fail maps a ledger error to its reason code and marks the candidate failed.
func (r *Recorder) fail(
	ctx context.Context, id string, from model.CandidateStatus, attempts int, cause error, ref string,
) (model.Outcome, error) {
	return r.failWith(ctx, id, from, attempts, failureReasonFor(cause), cause.Error(), ref)
}

func (r *Recorder) failWith(
	ctx context.Context, id string, from model.CandidateStatus, attempts int,
	reason model.FailureReason, detail, ref string,
) (model.Outcome, error) {
	var next time.Time
	if reason.Retryable() {
		next = r.retry.NextAttemptAt(r.clock.Now(), attempts)
	}

	ok, err := r.store.Transition(ctx, id, []model.CandidateStatus{from}, model.CandidateUpdate{
		Status:        model.CandidateFailed,
		FailureReason: &reason,
		LastError:     &detail,
		NextAttemptAt: &next,
	})
	if err != nil {
		return model.Outcome{}, fmt.Errorf("store failure %s: %w", reason, err)
	}
	if !ok {
		return model.Outcome{}, fmt.Errorf("candidate %s left %s before failure %s was stored", id, from, reason)
	}
	return model.Failed(reason, ref), nil
}

func (r *Recorder) report(id string, out model.Outcome) {
	r.metrics.observeOutcome(out)
	switch out.Kind {
	case model.OutcomeFailed:
		slog.Warn("record outcome", "candidate", id, "outcome", out.Kind, "reason", out.Reason(), "tx", out.TxRef)
	case model.OutcomeSkipped:
		slog.Debug("record outcome", "candidate", id, "outcome", out.Kind, "reason", out.Reason())
	default:
		slog.Info("record outcome", "candidate", id, "outcome", out.Kind, "tx", out.TxRef)
	}
}

func failureReasonFor(err error) model.FailureReason {
	switch {
	case errors.Is(err, driven.ErrNetworkUnavailable), errors.Is(err, context.DeadlineExceeded):
		return model.FailureNetworkUnavailable
	case errors.Is(err, driven.ErrNonceConflict):
		return model.FailureNonceConflict
	case errors.Is(err, driven.ErrEstimationReverted):
		return model.FailureEstimationReverted
	case errors.Is(err, driven.ErrRejected):
		return model.FailureRejected
	case errors.Is(err, driven.ErrInvalidSecret):
		return model.FailureInvalidSecret
	default:
		return model.FailureInternal
	}
}

func txSpecFor(c model.Candidate, sender string) model.TxSpec {
	return model.TxSpec{
		Kind:       c.Kind,
		From:       sender,
		DonorName:  c.DonorName,
		Amount:     c.Amount,
		Purpose:    c.Purpose,
		PaymentRef: c.PaymentRef,
		Category:   c.Category,
	}
}
