package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// respondServiceError writes the categorized form of a service error.
// System failures are logged and their message is replaced so that storage
// details never reach the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapServiceError(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"code":   body.Code,
		}).ErrorWithErr("Request failed", err)
	}
	respondJSON(w, status, ErrorResponse{Error: *body})
}

// mapServiceError maps service errors to HTTP status codes.
func mapServiceError(err error) (int, *types.ServiceError) {
	catErr := apperrors.Categorize(err)
	if catErr == nil {
		return http.StatusInternalServerError, internalError()
	}

	switch {
	case apperrors.IsUserError(catErr), catErr.StatusCode == http.StatusServiceUnavailable:
		return catErr.StatusCode, catErr.ToServiceError()
	default:
		return http.StatusInternalServerError, internalError()
	}
}

func internalError() *types.ServiceError {
	return &types.ServiceError{Code: ErrCodeInternalError, Message: "An internal error occurred"}
}
