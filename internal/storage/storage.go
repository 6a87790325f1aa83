package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("object not found")

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// Storage is the object store contract used by the work item service.
type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	// Download returns ErrNotFound when key does not exist.
	Download(ctx context.Context, key string) (*Object, error)
	List(ctx context.Context, prefix string) ([]string, error)
	// DeleteMany removes keys. Missing keys are not an error.
	DeleteMany(ctx context.Context, keys []string) error
}

// TransientError marks a failure worth retrying (throttling, 5xx, timeouts).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err was classified as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
