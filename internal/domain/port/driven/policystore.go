package driven

import (
	"context"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

// PolicyStore defines the driven port for the singleton recording policy.
type PolicyStore interface {
	// GetPolicy returns the stored policy.
	// Returns model.DefaultPolicy() if no policy has been saved.
	GetPolicy(ctx context.Context) (model.Policy, error)

	// SetPolicy persists the policy, replacing the previous one.
	SetPolicy(ctx context.Context, policy model.Policy) error
}
