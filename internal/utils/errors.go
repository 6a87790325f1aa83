package utils

import (
	"errors"
	"net/http"
)

// ErrorKind classifies failures surfaced by the work item service.
type ErrorKind string

const (
	KindDisabled           ErrorKind = "DISABLED"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindValidationMismatch ErrorKind = "VALIDATION_MISMATCH"
	KindBadRequest         ErrorKind = "BAD_REQUEST"
	KindUnauthorized       ErrorKind = "UNAUTHORIZED"
	KindConflict           ErrorKind = "CONFLICT"
	KindUpstream           ErrorKind = "UPSTREAM_FAILURE"
	KindPacking            ErrorKind = "PACKING_FAILURE"
	KindInternal           ErrorKind = "INTERNAL_ERROR"
)

// AppError carries a stable, caller-facing message. The underlying cause is
// kept for logging and errors.Is checks but never rendered to clients.
type AppError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// Retryable is set when the cause was classified as transient by the
	// storage adapter.
	Retryable bool
	Err       error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewDisabledError() *AppError {
	return &AppError{Kind: KindDisabled, StatusCode: http.StatusServiceUnavailable, Message: "Work item storage is disabled"}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Kind: KindNotFound, StatusCode: http.StatusNotFound, Message: message}
}

func NewValidationMismatchError(message string) *AppError {
	return &AppError{Kind: KindValidationMismatch, StatusCode: http.StatusBadRequest, Message: message}
}

func NewBadRequestError(message string) *AppError {
	return &AppError{Kind: KindBadRequest, StatusCode: http.StatusBadRequest, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, StatusCode: http.StatusUnauthorized, Message: message}
}

func NewConflictError(message string, err error) *AppError {
	return &AppError{Kind: KindConflict, StatusCode: http.StatusConflict, Message: message, Err: err}
}

func NewUpstreamError(message string, err error, retryable bool) *AppError {
	return &AppError{Kind: KindUpstream, StatusCode: http.StatusBadGateway, Message: message, Retryable: retryable, Err: err}
}

func NewPackingError(message string, err error) *AppError {
	return &AppError{Kind: KindPacking, StatusCode: http.StatusUnprocessableEntity, Message: message, Err: err}
}

func NewInternalError(message string) *AppError {
	return &AppError{Kind: KindInternal, StatusCode: http.StatusInternalServerError, Message: message}
}

// KindOf reports the kind of an AppError anywhere in err's chain, or
// KindInternal for anything else.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
