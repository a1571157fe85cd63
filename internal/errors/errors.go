// Package errors classifies failures into categories that map onto HTTP
// status codes and API error codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/chainsage-alerts/internal/types"
)

// ErrorCategory groups errors by who caused them
type ErrorCategory string

const (
	CategoryUserInput ErrorCategory = "user_input"
	CategoryNotFound  ErrorCategory = "not_found"
	CategoryRateLimit ErrorCategory = "rate_limit"
	CategorySystem    ErrorCategory = "system"
	CategoryDatabase  ErrorCategory = "database"
	// CategoryPipeline marks a failed monitoring pass; its message is safe to show
	CategoryPipeline ErrorCategory = "pipeline"
)

// CategorizedError carries the category, status and API code of a failure
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// IsClientError reports whether the status is in the 4xx range
func (e *CategorizedError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// NewInvalidAddressError rejects a wallet address that is not 0x plus 40 hex digits
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    "Invalid wallet address format",
		Details:    map[string]interface{}{"address": address},
	}
}

// NewNotFoundError reports a missing resource
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

// NewRateLimitError reports a client over its per-minute request allowance
func NewRateLimitError(limitPerMinute int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests",
		Details:    map[string]interface{}{"limitPerMinute": limitPerMinute},
	}
}

func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError wraps an alert store failure
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details:    map[string]interface{}{"operation": operation},
	}
}

// NewPipelineError wraps the failure of one pipeline pass at the given stage
func NewPipelineError(pass int64, stage string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPipeline,
		StatusCode: http.StatusInternalServerError,
		Code:       "PIPELINE_FAILED",
		Message:    fmt.Sprintf("pipeline pass #%d failed at %s", pass, stage),
		Cause:      cause,
		Details: map[string]interface{}{
			"pass":  pass,
			"stage": stage,
		},
	}
}

// Categorize finds the CategorizedError in err's chain. A ServiceError is
// mapped by code; anything else becomes an internal error.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return fromServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

func fromServiceError(err *types.ServiceError) *CategorizedError {
	catErr := &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}

	switch err.Code {
	case "INVALID_ADDRESS":
		catErr.Category = CategoryUserInput
		catErr.StatusCode = http.StatusBadRequest
	case "NOT_FOUND":
		catErr.Category = CategoryNotFound
		catErr.StatusCode = http.StatusNotFound
	case "RATE_LIMIT_EXCEEDED":
		catErr.Category = CategoryRateLimit
		catErr.StatusCode = http.StatusTooManyRequests
	}

	return catErr
}
