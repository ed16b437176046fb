package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")

	// Pipeline error taxonomy. Validation errors reject a file before any
	// extractor runs; parse errors abort extraction for a structurally
	// invalid file; storage errors cover disk/path failures during save;
	// delivery errors cover webhook transport failures.
	ErrValidation = errors.New("validation failed")
	ErrParse      = errors.New("parse failed")
	ErrStorage    = errors.New("storage failed")
	ErrDelivery   = errors.New("delivery failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: message, Cause: ErrValidation}
}

func NewParseError(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrParse
	} else {
		cause = fmt.Errorf("%w: %w", ErrParse, cause)
	}
	return &AppError{Code: "PARSE_ERROR", Message: message, Cause: cause}
}

func NewStorageError(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrStorage
	} else {
		cause = fmt.Errorf("%w: %w", ErrStorage, cause)
	}
	return &AppError{Code: "STORAGE_ERROR", Message: message, Cause: cause}
}

func NewDeliveryError(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrDelivery
	} else {
		cause = fmt.Errorf("%w: %w", ErrDelivery, cause)
	}
	return &AppError{Code: "DELIVERY_ERROR", Message: message, Cause: cause}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
