package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeMissingInput is stage-fatal: a required input or column is absent.
	ErrTypeMissingInput     ErrorType = "MISSING_INPUT"
	ErrTypeInsufficientData ErrorType = "INSUFFICIENT_DATA"
	ErrTypeDuplicateKey     ErrorType = "DUPLICATE_KEY"
	ErrTypeNumerical        ErrorType = "NUMERICAL"
	ErrTypeParsing          ErrorType = "PARSING"
	ErrTypeStorage          ErrorType = "STORAGE"
	ErrTypeValidation       ErrorType = "VALIDATION"
	ErrTypeConfig           ErrorType = "CONFIG"
)

// Fatal reports whether errors of this type abort the pipeline.
func (t ErrorType) Fatal() bool {
	switch t {
	case ErrTypeInsufficientData, ErrTypeDuplicateKey, ErrTypeNumerical:
		return false
	default:
		return true
	}
}

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewMissingInputError creates an error for an absent required input.
func NewMissingInputError(message string, missing ...string) *AppError {
	err := NewAppError(ErrTypeMissingInput, message, nil)
	if len(missing) > 0 {
		err.WithContext("missing", missing)
	}
	return err
}

// NewInsufficientDataError creates a per-entity insufficient data condition
func NewInsufficientDataError(message string) *AppError {
	return NewAppError(ErrTypeInsufficientData, message, nil)
}

// NewDuplicateKeyError creates a data-cleaning duplicate key condition
func NewDuplicateKeyError(message string, dropped int) *AppError {
	return NewAppError(ErrTypeDuplicateKey, message, nil).WithContext("dropped", dropped)
}

// NewNumericalError creates a numerical degeneracy condition
func NewNumericalError(message string) *AppError {
	return NewAppError(ErrTypeNumerical, message, nil)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeValidation, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// IsType reports whether any AppError in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errType {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// TypeOf returns the type of the first AppError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}
