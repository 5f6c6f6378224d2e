// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEntry    = errors.New("duplicate entry")
	ErrDatabaseCorrupted = errors.New("database corrupted")

	// Estimation errors.
	ErrNoInstrument      = errors.New("transaction has no linked instrument")
	ErrUnknownInstrument = errors.New("instrument not in wallet")
	ErrNonPositiveAmount = errors.New("transaction amount is not a spend")
	ErrNegativeDelta     = errors.New("negative missed value before clamping")

	// Categorizer errors.
	ErrCategorizerUnavailable = errors.New("categorizer unavailable")
	ErrCategorizerRejected    = errors.New("categorizer rejected request")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// DataError marks a transaction that cannot be compared because its data is
// incomplete. The transaction is excluded from comparisons, never deleted.
type DataError struct {
	Err           error
	TransactionID string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.TransactionID, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a DataError for the given transaction.
func NewDataError(transactionID string, err error) error {
	return &DataError{TransactionID: transactionID, Err: err}
}

// ExternalServiceError wraps a failure of an external collaborator.
// Callers degrade to a local fallback instead of propagating it.
type ExternalServiceError struct {
	Err     error
	Service string
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// ValidationError reports malformed instrument or rule data.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// InvariantViolation records a computation that broke an internal invariant.
// It is logged and corrected, never shown to users.
type InvariantViolation struct {
	Err    error
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated: %v (%s)", e.Err, e.Detail)
}

func (e *InvariantViolation) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsDataError reports whether err is a DataError.
func IsDataError(err error) bool {
	var d *DataError
	return errors.As(err, &d)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrCategorizerUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
