package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/juju/clock"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

// PolicyReader returns the policy in force. Readers get a value copy, so a
// concurrent update never shows them a half-applied policy.
type PolicyReader interface {
	Current() model.Policy
}

// PolicyService holds the process-wide recording policy. It is loaded once at
// startup and replaced as a whole by SetPolicy.
type PolicyService struct {
	store driven.PolicyStore
	audit *AuditLog
	clock clock.Clock

	mu      sync.RWMutex
	current model.Policy
}

// NewPolicyService loads the stored policy, falling back to the defaults
// when none has been saved.
func NewPolicyService(ctx context.Context, store driven.PolicyStore, audit *AuditLog, clk clock.Clock) (*PolicyService, error) {
	if clk == nil {
		clk = clock.WallClock
	}
	p, err := store.GetPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return &PolicyService{store: store, audit: audit, clock: clk, current: p}, nil
}

// Current returns the policy in force.
func (s *PolicyService) Current() model.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetPolicy applies upd on behalf of actor, stamps the audit time, persists
// the result and swaps it in. Invalid updates return ErrInvalidPolicy and
// leave the current policy untouched.
func (s *PolicyService) SetPolicy(ctx context.Context, upd model.PolicyUpdate, actor string) (model.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := upd.Apply(s.current)
	if err := next.Validate(); err != nil {
		return s.current, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	next.LastModifiedBy = actor
	next.LastAuditAt = s.clock.Now().UTC()

	if err := s.store.SetPolicy(ctx, next); err != nil {
		return s.current, fmt.Errorf("persist policy: %w", err)
	}

	prev := s.current
	s.current = next

	slog.Info("recording policy updated",
		"actor", actor,
		"enabled", next.Enabled,
		"mode", next.Mode,
		"max_auto_amount", next.MaxAutoAmount.String(),
		"session_timeout", next.SessionTimeout,
	)
	s.audit.Record(ctx, model.AuditPolicyUpdated, actor, describePolicyChange(prev, next))

	return next, nil
}

func describePolicyChange(prev, next model.Policy) string {
	return fmt.Sprintf("enabled %t->%t, mode %s->%s, max_auto_amount %s->%s, session_timeout %s->%s",
		prev.Enabled, next.Enabled,
		prev.Mode, next.Mode,
		prev.MaxAutoAmount, next.MaxAutoAmount,
		prev.SessionTimeout, next.SessionTimeout,
	)
}
