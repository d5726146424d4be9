package application_test

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/autorecord/internal/application"
	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

// --- Candidate store ---

type memCandidateStore struct {
	mu          sync.Mutex
	byID        map[string]model.Candidate
	transitions []model.CandidateUpdate
	getErr      error
}

func newMemCandidateStore(cs ...model.Candidate) *memCandidateStore {
	s := &memCandidateStore{byID: make(map[string]model.Candidate)}
	for _, c := range cs {
		s.byID[c.ID] = c
	}
	return s
}

func (s *memCandidateStore) Create(_ context.Context, c model.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.PaymentRef == c.PaymentRef {
			return driven.ErrDuplicatePaymentRef
		}
	}
	s.byID[c.ID] = c
	return nil
}

func (s *memCandidateStore) Get(_ context.Context, id string) (*model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	c, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memCandidateStore) List(_ context.Context, filter model.CandidateFilter) ([]model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Candidate
	for _, c := range s.byID {
		if len(filter.Statuses) == 0 || slices.Contains(filter.Statuses, c.Status) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b model.Candidate) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *memCandidateStore) ListEligible(_ context.Context, q model.EligibilityQuery) ([]model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fresh, verify []model.Candidate
	for _, c := range s.byID {
		if c.Status == model.CandidateFailed && c.FailureReason.Retryable() && c.HasPendingReference() &&
			!c.NextAttemptAt.After(q.Now) && (c.CreatedAt.Before(q.CreatedAfter) || c.Attempts >= q.MaxAttempts) {
			verify = append(verify, c)
			continue
		}
		if c.CreatedAt.Before(q.CreatedAfter) {
			continue
		}
		switch c.Status {
		case model.CandidateUnattempted:
		case model.CandidateAttempting, model.CandidateAttempted:
			if c.AttemptStartedAt.After(q.StaleBefore) {
				continue
			}
		case model.CandidateFailed:
			if !c.FailureReason.Retryable() || c.Attempts >= q.MaxAttempts || c.NextAttemptAt.After(q.Now) {
				continue
			}
		default:
			continue
		}
		fresh = append(fresh, c)
	}
	byAge := func(a, b model.Candidate) int { return a.CreatedAt.Compare(b.CreatedAt) }
	slices.SortFunc(fresh, byAge)
	slices.SortFunc(verify, byAge)
	out := append(fresh, verify...)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *memCandidateStore) Transition(
	_ context.Context, id string, from []model.CandidateStatus, upd model.CandidateUpdate,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || !slices.Contains(from, c.Status) {
		return false, nil
	}
	c.Status = upd.Status
	setIf(&c.SignedRef, upd.SignedRef)
	setIf(&c.AttemptedRef, upd.AttemptedRef)
	setIf(&c.ConfirmedRef, upd.ConfirmedRef)
	setIf(&c.SenderAddress, upd.SenderAddress)
	setIf(&c.FailureReason, upd.FailureReason)
	setIf(&c.LastError, upd.LastError)
	setIf(&c.Attempts, upd.Attempts)
	setIf(&c.AttemptStartedAt, upd.AttemptStartedAt)
	setIf(&c.NextAttemptAt, upd.NextAttemptAt)
	setIf(&c.RecordedAt, upd.RecordedAt)
	s.byID[id] = c
	s.transitions = append(s.transitions, upd)
	return true, nil
}

func (s *memCandidateStore) get(id string) model.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *memCandidateStore) transitionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transitions)
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// --- Ledger ---

const testSender = "0x00000000000000000000000000000000000000A1"

type fakeLedger struct {
	senderErr   error
	estimateErr error
	nonceErr    error
	submitErrs  []error // consumed in order, then success
	receipt     func(txRef string) (model.Confirmation, error)
	await       func(ctx context.Context, txRef string) (model.Confirmation, error)
	// submitGate, when set, blocks Submit until closed.
	submitGate chan struct{}

	mu      sync.Mutex
	nonce   uint64
	submits atomic.Int32
	signed  []model.SignedTx
}

func (l *fakeLedger) SenderAddress(_ []byte) (string, error) {
	if l.senderErr != nil {
		return "", l.senderErr
	}
	return testSender, nil
}

func (l *fakeLedger) EstimateFee(_ context.Context, _ model.TxSpec) (model.FeeEstimate, error) {
	if l.estimateErr != nil {
		return model.FeeEstimate{}, l.estimateErr
	}
	return model.FeeEstimate{GasLimit: 120000}, nil
}

func (l *fakeLedger) PendingNonce(_ context.Context, _ string) (uint64, error) {
	if l.nonceErr != nil {
		return 0, l.nonceErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonce, nil
}

func (l *fakeLedger) Sign(spec model.TxSpec, _ model.FeeEstimate, nonce uint64, _ []byte) (model.SignedTx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stx := model.SignedTx{
		Hash:  txHash(spec.PaymentRef, nonce),
		Nonce: nonce,
		From:  spec.From,
	}
	l.signed = append(l.signed, stx)
	return stx, nil
}

func (l *fakeLedger) Submit(_ context.Context, stx model.SignedTx) (string, error) {
	if l.submitGate != nil {
		<-l.submitGate
	}
	l.submits.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.submitErrs) > 0 {
		err := l.submitErrs[0]
		l.submitErrs = l.submitErrs[1:]
		if errors.Is(err, driven.ErrNonceConflict) {
			l.nonce++
		}
		return "", err
	}
	l.nonce++
	return stx.Hash, nil
}

func (l *fakeLedger) Receipt(_ context.Context, txRef string) (model.Confirmation, error) {
	if l.receipt != nil {
		return l.receipt(txRef)
	}
	return model.Confirmation{TxRef: txRef, Status: model.ConfirmationPending}, nil
}

func (l *fakeLedger) AwaitConfirmation(ctx context.Context, txRef string, _ time.Duration) (model.Confirmation, error) {
	if l.await != nil {
		return l.await(ctx, txRef)
	}
	return model.Confirmation{TxRef: txRef, Status: model.ConfirmationSuccess, BlockNumber: 42}, nil
}

func (l *fakeLedger) signedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.signed)
}

func txHash(paymentRef string, nonce uint64) string {
	return "0xtx-" + paymentRef + "-" + strconv.FormatUint(nonce, 10)
}

// --- Policy ---

type staticPolicy struct {
	mu sync.Mutex
	p  model.Policy
}

func automaticPolicy() *staticPolicy {
	p := model.DefaultPolicy()
	p.Enabled = true
	p.Mode = model.ModeAutomatic
	return &staticPolicy{p: p}
}

func (s *staticPolicy) Current() model.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p
}

func (s *staticPolicy) set(p model.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
}

type memPolicyStore struct {
	stored *model.Policy
	setErr error
}

func (s *memPolicyStore) GetPolicy(_ context.Context) (model.Policy, error) {
	if s.stored == nil {
		return model.DefaultPolicy(), nil
	}
	return *s.stored, nil
}

func (s *memPolicyStore) SetPolicy(_ context.Context, p model.Policy) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.stored = &p
	return nil
}

// --- Audit ---

type memAuditStore struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (s *memAuditStore) Append(_ context.Context, ev model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memAuditStore) List(_ context.Context, limit int) ([]model.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.events)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Secrets ---

type memSecretStore struct {
	mu    sync.Mutex
	rec   *model.SecretRecord
	saves int
}

func (s *memSecretStore) Load(_ context.Context) (*model.SecretRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, nil
	}
	rec := *s.rec
	return &rec, nil
}

func (s *memSecretStore) Create(_ context.Context, rec model.SecretRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil {
		return driven.ErrSecretExists
	}
	s.rec = &rec
	s.saves++
	return nil
}

func (s *memSecretStore) Save(_ context.Context, rec model.SecretRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &rec
	s.saves++
	return nil
}

// staticSecret is a SecretSource with a fixed session state.
type staticSecret struct {
	secret []byte
}

func (s staticSecret) Get(_ context.Context) ([]byte, error) {
	if s.secret == nil {
		return nil, application.ErrNoSession
	}
	out := make([]byte, len(s.secret))
	copy(out, s.secret)
	return out, nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) Notify(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
}
