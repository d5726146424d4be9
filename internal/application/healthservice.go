package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

// ErrSchemaDirty is returned when the last migration did not complete.
var ErrSchemaDirty = errors.New("database schema is dirty")

// SchemaVersionFunc reports the applied migration version and dirty flag.
type SchemaVersionFunc func() (uint, bool, error)

// SystemStatus is the operator-facing view of the recording pipeline.
type SystemStatus struct {
	SchemaVersion    uint
	Vault            VaultStatus
	SessionActive    bool
	SessionRemaining time.Duration
	Policy           model.Policy
}

// HealthService assembles the status view from the vault, the session
// cache, the policy and the schema. It never decrypts anything.
type HealthService struct {
	vault   *Vault
	session *SessionCache
	policy  PolicyReader
	schema  SchemaVersionFunc
}

// NewHealthService creates a new HealthService with the required dependencies.
func NewHealthService(vault *Vault, session *SessionCache, policy PolicyReader, schema SchemaVersionFunc) *HealthService {
	return &HealthService{
		vault:   vault,
		session: session,
		policy:  policy,
		schema:  schema,
	}
}

// Check reports whether the daemon can serve: the schema must be migrated
// and clean. A missing vault or session is not unhealthy.
func (s *HealthService) Check(_ context.Context) error {
	if s.schema == nil {
		return nil
	}
	version, dirty, err := s.schema()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("%w at version %d", ErrSchemaDirty, version)
	}
	return nil
}

// Status assembles the full system status.
func (s *HealthService) Status(ctx context.Context) (*SystemStatus, error) {
	st := &SystemStatus{
		Policy:           s.policy.Current(),
		SessionActive:    s.session.Active(),
		SessionRemaining: s.session.TimeRemaining(),
	}

	if s.schema != nil {
		version, _, err := s.schema()
		if err != nil {
			return nil, err
		}
		st.SchemaVersion = version
	}

	vs, err := s.vault.Status(ctx)
	if err != nil {
		return nil, err
	}
	st.Vault = vs

	return st, nil
}
