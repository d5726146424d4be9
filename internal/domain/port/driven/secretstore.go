package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

// ErrSecretExists is returned by SecretStore.Create when a record is already stored.
var ErrSecretExists = errors.New("secret record already exists")

// SecretStore defines the driven port for the encrypted Secret Record. It is
// kept apart from the domain store and only ever sees ciphertext.
type SecretStore interface {
	// Load returns the stored record. Returns (nil, nil) if none exists.
	Load(ctx context.Context) (*model.SecretRecord, error)

	// Create stores rec only if no record exists, failing with
	// ErrSecretExists otherwise. The check and the write are one step with
	// respect to every other Create, Save and Load.
	Create(ctx context.Context, rec model.SecretRecord) error

	// Save replaces the stored record. A crash mid-write must leave either
	// the old or the new record intact.
	Save(ctx context.Context, rec model.SecretRecord) error
}
