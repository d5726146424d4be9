package driven

import (
	"context"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

// AuditStore defines the driven port for the append-only audit log.
type AuditStore interface {
	Append(ctx context.Context, ev model.AuditEvent) error

	// List returns the most recent events first.
	List(ctx context.Context, limit int) ([]model.AuditEvent, error)
}
