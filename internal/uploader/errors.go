package uploader

import (
	"errors"
	"fmt"
)

// Sentinel errors - use errors.Is() to check
var (
	ErrValidation     = errors.New("validation error")
	ErrTransfer       = errors.New("transfer failed")
	ErrNotFound       = errors.New("not found")
	ErrUnknownFailure = errors.New("upload failed for an unknown reason")
)

// ValidationError reports a missing or malformed request field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is implements errors.Is for ValidationError
func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransferError wraps whatever the storage collaborator reported.
// The original error stays reachable through errors.Unwrap and errors.As.
type TransferError struct {
	Op     string // "file" or "directory"
	Target string // bucket/key or bucket/prefix
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s upload to %s: %v", e.Op, e.Target, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for TransferError
func (e *TransferError) Is(target error) bool {
	return target == ErrTransfer
}

// IsValidation checks if err is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransfer checks if err came from the storage collaborator
func IsTransfer(err error) bool {
	return errors.Is(err, ErrTransfer)
}

// IsNotFound checks if err is a missing local path
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
