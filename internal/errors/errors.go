package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/portfolio-versioning/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryValidation represents malformed input
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents a missing portfolio or version
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents a lost race on version number assignment
	CategoryConflict ErrorCategory = "conflict"
	// CategoryIntegrity represents a storage constraint violation
	CategoryIntegrity ErrorCategory = "integrity"
	// CategorySerialization represents a value with no canonical form
	CategorySerialization ErrorCategory = "serialization"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// User Input Errors (4xx)

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewVersionNotFoundError creates a not found error for a version of a portfolio
func NewVersionNotFoundError(portfolioID string, versionNumber int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "VERSION_NOT_FOUND",
		Message:    fmt.Sprintf("version %d not found for portfolio %s", versionNumber, portfolioID),
		Details: map[string]interface{}{
			"portfolioId":   portfolioID,
			"versionNumber": versionNumber,
		},
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_ERROR",
		Message:    message,
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewAlreadyExistsError creates an error for a duplicate natural key
func NewAlreadyExistsError(resource string, key string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusConflict,
		Code:       "ALREADY_EXISTS",
		Message:    fmt.Sprintf("%s already exists: %s", resource, key),
		Details: map[string]interface{}{
			"resource": resource,
			"key":      key,
		},
	}
}

// NewSerializationError creates an error for a field with no canonical representation
func NewSerializationError(field string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySerialization,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "SERIALIZATION_ERROR",
		Message:    fmt.Sprintf("cannot serialize field '%s': %s", field, reason),
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
	}
}

// NewConcurrencyConflictError reports that version assignment kept racing another writer
func NewConcurrencyConflictError(portfolioID string, attempts int, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONCURRENCY_CONFLICT",
		Message:    fmt.Sprintf("version assignment for portfolio %s conflicted after %d attempts", portfolioID, attempts),
		Cause:      cause,
		Details: map[string]interface{}{
			"portfolioId": portfolioID,
			"attempts":    attempts,
		},
	}
}

// NewIntegrityError creates a storage constraint violation error
func NewIntegrityError(constraint string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryIntegrity,
		StatusCode: http.StatusConflict,
		Code:       "INTEGRITY_ERROR",
		Message:    fmt.Sprintf("constraint violated: %s", constraint),
		Cause:      cause,
		Details: map[string]interface{}{
			"constraint": constraint,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Cause:      cause,
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized (possibly wrapped), return it
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category, status := CategorySystem, http.StatusInternalServerError
	switch err.Code {
	case "NOT_FOUND", "PORTFOLIO_NOT_FOUND", "VERSION_NOT_FOUND":
		category, status = CategoryNotFound, http.StatusNotFound
	case "VALIDATION_ERROR", "INVALID_PARAMETER":
		category, status = CategoryValidation, http.StatusBadRequest
	case "CONFLICT", "CONCURRENCY_CONFLICT":
		category, status = CategoryConflict, http.StatusConflict
	}
	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

func is(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	return stderrors.As(err, &catErr) && catErr.Category == category
}

// IsNotFound reports whether err is a NotFound error
func IsNotFound(err error) bool { return is(err, CategoryNotFound) }

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return is(err, CategoryValidation) }

// IsSerialization reports whether err is a serialization error
func IsSerialization(err error) bool { return is(err, CategorySerialization) }

// IsConflict reports whether err is a concurrency conflict
func IsConflict(err error) bool { return is(err, CategoryConflict) }

// IsIntegrity reports whether err is a storage constraint violation
func IsIntegrity(err error) bool { return is(err, CategoryIntegrity) }

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable.
// Conflicts and constraint violations on version assignment are retried by
// re-running the whole transaction.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var catErr *CategorizedError
	if !stderrors.As(err, &catErr) {
		return false
	}

	switch catErr.Category {
	case CategoryConflict, CategoryIntegrity:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
