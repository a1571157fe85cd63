package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/chainsage-alerts/internal/errors"
	"github.com/chainsage-alerts/internal/logging"
	"github.com/chainsage-alerts/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Success bool               `json:"success"`
	Error   types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Success: false,
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondServiceError maps err onto its category's status and code.
// Internal details are hidden behind a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	message := catErr.Message
	if !catErr.IsClientError() {
		logging.FromContext(r.Context()).WithError(err).Error("Request failed")
		if catErr.Category != apperrors.CategoryPipeline {
			message = "An internal error occurred"
		}
	}
	respondError(w, catErr.StatusCode, catErr.Code, message, catErr.Details)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Common error codes
const (
	ErrCodeInvalidAddress    = "INVALID_ADDRESS"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)
