package twin

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by owner-scoped store operations when no twin
// matches both the id and the owner. A twin that exists but belongs to a
// different owner is indistinguishable from a twin that does not exist.
var ErrNotFound = errors.New("no such twin")

// Update describes a partial update of a twin. A nil field keeps the
// stored value.
type Update struct {
	SpecURL      *string
	Capabilities *[]string
}

// Store is the persistence gateway for twin records.
//
// Every owner-scoped operation must combine id and owner into one atomic
// predicate. Implementations must not load a record first and check the
// owner in application code; the check and the mutation have to be a single
// store operation.
type Store interface {
	// Create stores a new twin. The id must be set.
	Create(ctx context.Context, t Twin) (Twin, error)
	// ListByOwner returns all twins of the given owner, oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Twin, error)
	// GetByIDAndOwner returns the twin with the given id if it is owned by
	// the given owner, otherwise ErrNotFound.
	GetByIDAndOwner(ctx context.Context, id, ownerID string) (Twin, error)
	// UpdateByIDAndOwner applies the update to the twin with the given id
	// if it is owned by the given owner, otherwise ErrNotFound.
	UpdateByIDAndOwner(ctx context.Context, id, ownerID string, update Update) (Twin, error)
	// DeleteByIDAndOwner removes the twin with the given id if it is owned
	// by the given owner, otherwise ErrNotFound.
	DeleteByIDAndOwner(ctx context.Context, id, ownerID string) error
	// Touch stamps the twin's last telemetry time. An empty ownerID is the
	// privileged unscoped variant used by service callers.
	Touch(ctx context.Context, id, ownerID string, at time.Time) error
}
