package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError represents validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// InvalidParameter reports a malformed path or query parameter.
func InvalidParameter(name, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_PARAMETER", fmt.Sprintf("invalid %s: %s", name, message), ValidationError{
		Field:   name,
		Message: message,
	})
}

// BatchNotFound reports an unknown upload batch.
func BatchNotFound(batchID int64) *APIError {
	return NewWithDetails(http.StatusNotFound, "BATCH_NOT_FOUND", fmt.Sprintf("batch %d not found", batchID), map[string]int64{
		"batch_id": batchID,
	})
}

// UnsupportedDataset reports a batch whose dataset has no pipeline.
func UnsupportedDataset(message string) *APIError {
	return New(http.StatusUnprocessableEntity, "UNSUPPORTED_DATASET", message)
}

// BatchFailed reports a batch run that ended in the failed state.
func BatchFailed(message string) *APIError {
	return New(http.StatusInternalServerError, "BATCH_FAILED", message)
}

// KPICalculationFailed reports an aborted KPI calculation.
func KPICalculationFailed(cause error) *APIError {
	return NewWithDetails(http.StatusInternalServerError, "KPI_CALCULATION_FAILED", "KPI calculation failed", cause.Error())
}

// NewValidationErrors creates validation errors from multiple fields
func NewValidationErrors(errors []ValidationError) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", errors)
}
