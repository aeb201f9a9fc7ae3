package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the boundary can tell "your input is bad"
// from "we failed internally" from "the upstream service failed".
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"  // bad input shape, caught before any I/O
	KindAcquisition ErrorKind = "acquisition" // source unreachable or unreadable
	KindExtraction  ErrorKind = "extraction"  // extraction service failed, timed out, or misbehaved
	KindPersistence ErrorKind = "persistence" // storage unavailable or inconsistent
)

// AppError represents application-specific errors.
type AppError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ErrNotFound marks lookups for cases and tasks that do not exist.
var ErrNotFound = errors.New("resource not found")

// Error constructors, one per kind.

func NewValidationError(message string, cause error) *AppError {
	return &AppError{Kind: KindValidation, Message: message, Cause: cause}
}

func NewAcquisitionError(message string, cause error) *AppError {
	return &AppError{Kind: KindAcquisition, Message: message, Cause: cause}
}

func NewExtractionError(message string, cause error) *AppError {
	return &AppError{Kind: KindExtraction, Message: message, Cause: cause}
}

func NewPersistenceError(message string, cause error) *AppError {
	return &AppError{Kind: KindPersistence, Message: message, Cause: cause}
}

// KindOf returns the classification of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
