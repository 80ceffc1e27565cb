package access

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks missing or malformed request input.
	ErrInvalidInput = errors.New("access: invalid input")
	// ErrAuthOrNotFound is returned when an ownership or visibility lookup matches no row.
	// It never distinguishes a missing row from one owned by someone else.
	ErrAuthOrNotFound = errors.New("access: not found or not permitted")
	// ErrPageOutOfRange is returned when a requested page lies past the last page.
	ErrPageOutOfRange = errors.New("access: page out of range")
)

// ValidationError carries a user-facing message for a rejected input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is lets callers match any ValidationError against ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Invalid builds a ValidationError with the given message.
func Invalid(message string) error {
	return &ValidationError{Message: message}
}

// ServiceError tags a failure with a stable "<operation>.<reason>" code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation-scoped error code.
func (e *ServiceError) Code() string {
	return e.code
}

// NewServiceError wraps cause under the code "<operation>.<reason>".
func NewServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
