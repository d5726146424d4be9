package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

func TestAuditRepo_AppendAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, action := range []model.AuditAction{model.AuditSessionUnlock, model.AuditPolicyUpdated, model.AuditSessionLock} {
		require.NoError(t, repo.Append(ctx, model.AuditEvent{
			ID:     uuid.NewString(),
			Action: action,
			Actor:  "admin",
			At:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.AuditSessionLock, events[0].Action)
	assert.Equal(t, model.AuditPolicyUpdated, events[1].Action)
	assert.Equal(t, "admin", events[0].Actor)
	assert.True(t, base.Add(2*time.Minute).Equal(events[0].At))
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, RunMigrations(db.Writer))

	version, dirty, err := SchemaVersion(db.Writer)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}
