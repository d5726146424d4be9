package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

// ErrDuplicatePaymentRef is returned by CandidateStore.Create when another
// candidate already carries the same payment reference.
var ErrDuplicatePaymentRef = errors.New("duplicate payment reference")

// CandidateStore defines the driven port for the domain store's candidates.
type CandidateStore interface {
	Create(ctx context.Context, c model.Candidate) error

	// Get returns the candidate with the given id. Returns (nil, nil) if absent.
	Get(ctx context.Context, id string) (*model.Candidate, error)

	List(ctx context.Context, filter model.CandidateFilter) ([]model.Candidate, error)

	// ListEligible returns the candidates a scan may pick up, oldest first.
	ListEligible(ctx context.Context, q model.EligibilityQuery) ([]model.Candidate, error)

	// Transition applies upd only if the candidate's current status is one of
	// from. It reports whether the row was updated.
	Transition(ctx context.Context, id string, from []model.CandidateStatus, upd model.CandidateUpdate) (bool, error)
}
