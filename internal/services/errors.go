package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service failures for the HTTP layer.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindDatabase   ErrorKind = "database"
	KindInternal   ErrorKind = "internal"
)

// Error codes surfaced to API clients.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeDatabase          = "DATABASE_ERROR"
	CodeInternal          = "INTERNAL_ERROR"
	CodePossibleDuplicate = "POSSIBLE_DUPLICATE"
)

// AppError is the error type returned by every service operation.
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ValidationError reports missing or malformed input.
func ValidationError(format string, args ...any) *AppError {
	return &AppError{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an absent entity where one is required.
func NotFoundError(format string, args ...any) *AppError {
	return &AppError{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a write rejected by the entity's current state.
func ConflictError(format string, args ...any) *AppError {
	return &AppError{Kind: KindConflict, Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// DatabaseError wraps a storage failure.
func DatabaseError(message string, err error) *AppError {
	return &AppError{Kind: KindDatabase, Code: CodeDatabase, Message: message, Err: err}
}

// InternalError wraps any other unexpected failure.
func InternalError(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Code: CodeInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
