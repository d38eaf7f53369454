package domain

import "errors"

// ValidationError is returned when caller input fails a precondition.
// It is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

// StoreError carries a failure reported by the branching/freeze/upsert
// store calls. Its message is surfaced to the caller verbatim.
type StoreError struct {
	Message string
	Err     error
}

func (e *StoreError) Error() string { return e.Message }

func (e *StoreError) Unwrap() error { return e.Err }

func NewStoreError(message string, err error) error {
	return &StoreError{Message: message, Err: err}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsStore(err error) bool {
	var target *StoreError
	return errors.As(err, &target)
}
