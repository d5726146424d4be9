package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

const (
	maxPurposeLength    = 256
	maxDonorNameLength  = 128
	maxPaymentRefLength = 64
)

// Notifier schedules an inline recording attempt for a new candidate.
// *ScanWorker satisfies it.
type Notifier interface {
	Notify(candidateID string)
}

// NewCandidate is the input for creating a candidate.
type NewCandidate struct {
	Kind       model.CandidateKind
	Amount     model.Amount
	Category   model.Category
	Purpose    string
	DonorName  string
	PaymentRef string
}

// CandidateService creates and reads candidates on behalf of the domain
// application that owns them.
type CandidateService struct {
	store    driven.CandidateStore
	notifier Notifier
	clock    clock.Clock
}

// NewCandidateService creates a CandidateService. notifier may be nil, in
// which case new candidates wait for the next scan.
func NewCandidateService(store driven.CandidateStore, notifier Notifier, clk clock.Clock) *CandidateService {
	if clk == nil {
		clk = clock.WallClock
	}
	return &CandidateService{store: store, notifier: notifier, clock: clk}
}

// Create validates and stores a new unattempted candidate, then schedules
// an inline recording attempt without waiting for it.
func (s *CandidateService) Create(ctx context.Context, in NewCandidate) (*model.Candidate, error) {
	in.Purpose = strings.TrimSpace(in.Purpose)
	in.DonorName = strings.TrimSpace(in.DonorName)
	in.PaymentRef = strings.TrimSpace(in.PaymentRef)

	if err := validateNewCandidate(in); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	c := &model.Candidate{
		ID:         uuid.NewString(),
		Kind:       in.Kind,
		Amount:     in.Amount,
		Category:   in.Category,
		Purpose:    in.Purpose,
		DonorName:  in.DonorName,
		PaymentRef: in.PaymentRef,
		Status:     model.CandidateUnattempted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Create(ctx, *c); err != nil {
		return nil, fmt.Errorf("create candidate: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(c.ID)
	}
	return c, nil
}

// Get returns the candidate with the given id.
func (s *CandidateService) Get(ctx context.Context, id string) (*model.Candidate, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get candidate %s: %w", id, err)
	}
	if c == nil {
		return nil, ErrCandidateNotFound
	}
	return c, nil
}

// List returns candidates matching filter, newest first.
func (s *CandidateService) List(ctx context.Context, filter model.CandidateFilter) ([]model.Candidate, error) {
	return s.store.List(ctx, filter)
}

func validateNewCandidate(in NewCandidate) error {
	if _, err := model.ParseCandidateKind(string(in.Kind)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCandidate, err)
	}
	if in.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidCandidate)
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: unknown category %d", ErrInvalidCandidate, in.Category)
	}
	if in.PaymentRef == "" {
		return fmt.Errorf("%w: payment reference is required", ErrInvalidCandidate)
	}
	if len(in.PaymentRef) > maxPaymentRefLength {
		return fmt.Errorf("%w: payment reference longer than %d", ErrInvalidCandidate, maxPaymentRefLength)
	}
	if len(in.Purpose) > maxPurposeLength {
		return fmt.Errorf("%w: purpose longer than %d", ErrInvalidCandidate, maxPurposeLength)
	}
	if in.Kind == model.KindDonation {
		if in.DonorName == "" {
			return fmt.Errorf("%w: donor name is required for donations", ErrInvalidCandidate)
		}
		if len(in.DonorName) > maxDonorNameLength {
			return fmt.Errorf("%w: donor name longer than %d", ErrInvalidCandidate, maxDonorNameLength)
		}
	}
	return nil
}
