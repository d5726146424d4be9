package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() ensures isolation between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(t.Name()),
	)

	ctx := context.Background()
	writer, err := open(ctx, dsn, 1)
	require.NoError(t, err, "open test db writer")
	reader, err := open(ctx, dsn, 4)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("open test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func newTestCandidate(ref string, created time.Time) model.Candidate {
	return model.Candidate{
		ID:         uuid.NewString(),
		Kind:       model.KindDonation,
		Amount:     model.Rupees(500),
		Category:   model.CategoryFoodDistribution,
		Purpose:    "meals",
		DonorName:  "Asha",
		PaymentRef: ref,
		Status:     model.CandidateUnattempted,
		CreatedAt:  created,
	}
}
