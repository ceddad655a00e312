package shared

import (
	"context"
	"errors"
	"fmt"
)

// ErrInternal marks infrastructure failures such as storage, constraint or driver errors.
var ErrInternal = errors.New("internal failure")

// DomainError is a business rule violation. It is never transient.
type DomainError struct {
	Code    string
	Message string
}

// NewDomainError declares a domain error sentinel.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func (e *DomainError) Error() string {
	return e.Message
}

// IsDomainError reports whether err carries a DomainError anywhere in its chain.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// DomainCode returns the code of the first DomainError in the chain.
func DomainCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// InternalError wraps an infrastructure error with the failing operation.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrInternal) match every InternalError.
func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

// Internal classifies err: domain errors and context cancellation pass through
// untouched, anything else becomes an InternalError.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) || errors.Is(err, ErrInternal) || errors.Is(err, ErrIdempotencyConflict) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}
