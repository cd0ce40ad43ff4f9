package shared

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinels for errors.Is checks across packages
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrMaintenance   = errors.New("system is in maintenance mode")
	ErrStorage       = errors.New("storage failure")
	ErrPermission    = errors.New("permission denied")
	ErrStateMismatch = errors.New("persisted state differs from requested state")
)

// MaintenanceMessage is shown to clients whose write was refused by the gate.
// It is kept distinct from generic failures so a client can revert unsaved edits.
const MaintenanceMessage = "System is in maintenance mode (read-only). Your changes were not saved."

// ValidationError reports a bad input value
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError with a formatted reason
func NewValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned by operations that cannot proceed without the
// referenced record. Plain lookups report absence instead.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// MaintenanceBlockedError is returned when a write is refused by the maintenance gate.
// Cause is set when the flag could not be read.
type MaintenanceBlockedError struct {
	Operation string
	Cause     error
}

func (e *MaintenanceBlockedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s blocked: maintenance flag unreadable: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s blocked: system is in maintenance mode", e.Operation)
}

func (e *MaintenanceBlockedError) Is(target error) bool { return target == ErrMaintenance }

func (e *MaintenanceBlockedError) Unwrap() error { return e.Cause }

// StorageError wraps any persistence failure. It is never retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err unless it is nil or already a StorageError
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// PermissionError is returned when the caller's role may not perform an operation
type PermissionError struct {
	Role      string
	Operation string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("role %q may not %s", e.Role, e.Operation)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

// StateMismatchError is returned when a persisted value does not read back as written
type StateMismatchError struct {
	Key       string
	Requested string
	Persisted string
}

func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("%s: requested %q but storage reports %q", e.Key, e.Requested, e.Persisted)
}

func (e *StateMismatchError) Is(target error) bool { return target == ErrStateMismatch }

// ============================================================================
// gRPC Status Mapping
// ============================================================================

// ToStatus converts a domain error into a gRPC status error. The gateway turns
// the status code into an HTTP response.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrMaintenance):
		return status.Error(codes.FailedPrecondition, MaintenanceMessage)
	case errors.Is(err, ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrPermission):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ErrStateMismatch):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, ErrStorage):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
