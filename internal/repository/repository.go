package repository

import (
	"context"
	"errors"

	"github.com/BerylCAtieno/iac-workitem-api/internal/models"
)

var (
	ErrNotFound        = errors.New("work item not found")
	ErrAlreadyExists   = errors.New("work item already exists")
	ErrConditionFailed = errors.New("work item precondition failed")
)

// Repository stores work item records keyed by (userID, fileID).
type Repository interface {
	// Create inserts item and fails with ErrAlreadyExists if the key is taken.
	Create(ctx context.Context, item *models.WorkItem) error
	// Get returns nil, nil when the record does not exist.
	Get(ctx context.Context, userID, fileID string) (*models.WorkItem, error)
	// Update writes only the attributes set in upd and returns the updated
	// record. It returns ErrNotFound for a missing record and
	// ErrConditionFailed when a precondition in upd does not hold.
	Update(ctx context.Context, userID, fileID string, upd models.WorkItemUpdate) (*models.WorkItem, error)
	// Query returns every record of a user in no particular order.
	Query(ctx context.Context, userID string) ([]*models.WorkItem, error)
	// Delete removes the record. A missing record is not an error.
	Delete(ctx context.Context, userID, fileID string) error
}

// TransientError marks a failure worth retrying (throttling, timeouts, busy).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
