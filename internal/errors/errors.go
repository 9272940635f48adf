package errors

import (
	stderrors "errors"
	"fmt"
)

// QuarryError is the structured error type for quarry.
// It provides rich context for error handling, logging, and user presentation.
type QuarryError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Format, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *QuarryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *QuarryError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with QuarryError.
func (e *QuarryError) Is(target error) bool {
	if t, ok := target.(*QuarryError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *QuarryError) WithDetail(key, value string) *QuarryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *QuarryError) WithSuggestion(suggestion string) *QuarryError {
	e.Suggestion = suggestion
	return e
}

// New creates a new QuarryError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *QuarryError {
	return &QuarryError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a QuarryError from an existing error.
// The error's message becomes the QuarryError message.
func Wrap(code string, err error) *QuarryError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *QuarryError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error (document read or cache write).
func IOError(message string, cause error) *QuarryError {
	return New(ErrCodeFileRead, message, cause)
}

// FormatError creates a cache-format error. Callers downgrade these to a
// full rebuild; they never abort a load.
func FormatError(message string, cause error) *QuarryError {
	return New(ErrCodeCacheCorrupt, message, cause)
}

// DefectError creates an internal invariant-violation error. Callers force
// a full rebuild; the error is never surfaced to users.
func DefectError(message string, cause error) *QuarryError {
	return New(ErrCodeInternal, message, cause)
}

// BuildError creates an index-build failure. Surfaced to synchronous load
// callers; background triggers record it in status instead.
func BuildError(message string, cause error) *QuarryError {
	return New(ErrCodeBuildFailed, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *QuarryError {
	return New(ErrCodeInvalidInput, message, cause)
}

// CategoryOf extracts the category from anywhere in an error chain.
// Returns empty string if no QuarryError is present.
func CategoryOf(err error) Category {
	var qe *QuarryError
	if stderrors.As(err, &qe) {
		return qe.Category
	}
	return ""
}

// IsFormat reports whether any error in the chain is a format error.
func IsFormat(err error) bool {
	return CategoryOf(err) == CategoryFormat
}

// IsDefect reports whether any error in the chain is a defect error.
func IsDefect(err error) bool {
	return CategoryOf(err) == CategoryDefect
}

// IsBuild reports whether any error in the chain is a build error.
func IsBuild(err error) bool {
	return CategoryOf(err) == CategoryBuild
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a QuarryError with the
// Retryable flag set.
func IsRetryable(err error) bool {
	var qe *QuarryError
	if stderrors.As(err, &qe) {
		return qe.Retryable
	}
	return false
}

// GetCode extracts the error code from an error chain.
// Returns empty string if no QuarryError is present.
func GetCode(err error) string {
	var qe *QuarryError
	if stderrors.As(err, &qe) {
		return qe.Code
	}
	return ""
}
