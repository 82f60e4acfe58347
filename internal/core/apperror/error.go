// Package apperror provides structured error handling following RFC 7807 Problem Details.
// Every error raised by the persistence layer is an AppError so that callers can
// branch on Code instead of matching message text.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Programming errors: a caller built an impossible query (5xx).
	CodeInvalidComparator = "INVALID_COMPARATOR"
	CodeInvalidCombiner   = "INVALID_COMBINER"
	CodeInvalidColumn     = "INVALID_COLUMN"
	CodeMissingFilter     = "MISSING_FILTER"

	// Validation errors (400)
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeMissingKeyField = "MISSING_KEY_FIELD"

	// Row-level import failure (422)
	CodeRowValidation = "ROW_VALIDATION"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict  = "CONFLICT"
	CodeDuplicate = "DUPLICATE_ENTRY"
)

// AppError is the standard error type.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, row numbers, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidInput creates an invalid argument error (400)
func NewInvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidComparator is raised when a criterion carries a compare type
// outside the closed set. It signals a programming error and is never recovered.
func NewInvalidComparator(compare any) *AppError {
	return &AppError{
		Code:       CodeInvalidComparator,
		Message:    "Invalid comparator selected",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"compareType": compare},
	}
}

// NewInvalidCombiner is raised when a criterion carries a combiner other than AND/OR.
func NewInvalidCombiner(combiner any) *AppError {
	return &AppError{
		Code:       CodeInvalidCombiner,
		Message:    "Invalid expression combiner provided, only AND and OR are allowed",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"combiner": combiner},
	}
}

// NewInvalidColumn is raised when a column path is not a plain or dotted identifier.
func NewInvalidColumn(column string) *AppError {
	return &AppError{
		Code:       CodeInvalidColumn,
		Message:    "Invalid column path",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"column": column},
	}
}

// NewMissingFilter is raised when a read/count receives neither a QueryFilter nor a raw map.
func NewMissingFilter(got any) *AppError {
	return &AppError{
		Code:       CodeMissingFilter,
		Message:    "Query filter must be provided to read data",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"type": fmt.Sprintf("%T", got)},
	}
}

// NewMissingKeyField is raised when the import key field is not among the header names.
func NewMissingKeyField(field string, header []string) *AppError {
	return &AppError{
		Code:       CodeMissingKeyField,
		Message:    fmt.Sprintf("key field %q not found in header", field),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"keyField": field, "header": header},
	}
}

// NewRowValidation reports the row that aborted an import together with its field messages.
func NewRowValidation(row int, fields map[string][]string) *AppError {
	return &AppError{
		Code:       CodeRowValidation,
		Message:    fmt.Sprintf("row %d failed validation", row),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"row": row, "fields": fields},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field string, value any) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether any AppError in the chain carries code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsInvalidComparator checks if error is CodeInvalidComparator
func IsInvalidComparator(err error) bool { return HasCode(err, CodeInvalidComparator) }

// IsInvalidCombiner checks if error is CodeInvalidCombiner
func IsInvalidCombiner(err error) bool { return HasCode(err, CodeInvalidCombiner) }

// IsMissingFilter checks if error is CodeMissingFilter
func IsMissingFilter(err error) bool { return HasCode(err, CodeMissingFilter) }

// IsMissingKeyField checks if error is CodeMissingKeyField
func IsMissingKeyField(err error) bool { return HasCode(err, CodeMissingKeyField) }

// IsRowValidation checks if error is CodeRowValidation
func IsRowValidation(err error) bool { return HasCode(err, CodeRowValidation) }
