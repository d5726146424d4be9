package application

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

// AuditLog appends administrative actions to the audit store. A nil
// *AuditLog discards events.
type AuditLog struct {
	store driven.AuditStore
	clock clock.Clock
}

// NewAuditLog creates an AuditLog over store.
func NewAuditLog(store driven.AuditStore, clk clock.Clock) *AuditLog {
	if clk == nil {
		clk = clock.WallClock
	}
	return &AuditLog{store: store, clock: clk}
}

// Record appends an event. Store failures are logged, not returned: the
// action itself has already happened.
func (a *AuditLog) Record(ctx context.Context, action model.AuditAction, actor, detail string) {
	if a == nil {
		return
	}
	ev := model.AuditEvent{
		ID:     uuid.NewString(),
		Action: action,
		Actor:  actor,
		Detail: detail,
		At:     a.clock.Now().UTC(),
	}
	if err := a.store.Append(context.WithoutCancel(ctx), ev); err != nil {
		slog.Error("audit append failed", "action", action, "actor", actor, "error", err)
	}
}

// Recent returns up to limit events, most recent first.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	if a == nil {
		return nil, nil
	}
	return a.store.List(ctx, limit)
}
