package points

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the point ledger.
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrInsufficientFunds       = errors.New("insufficient available points")
	ErrInsufficientReservation = errors.New("insufficient reserved points")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidKind             = errors.New("invalid entry kind")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
	// ErrIntegrityViolation signals that a committed mutation would have
	// broken 0 <= reserved <= current. It indicates a bug, not a business
	// rejection, and is logged at error severity by callers.
	ErrIntegrityViolation = errors.New("balance integrity violation")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
