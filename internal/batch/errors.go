package batch

import (
	"errors"
	"fmt"
)

// ErrorType classifies batch-level failures.
type ErrorType string

const (
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeUnsupportedDataset ErrorType = "unsupported_dataset"
	ErrorTypeExecution          ErrorType = "execution"
)

// BatchError is a fatal batch failure. Row-level problems are DQ issues,
// never errors.
type BatchError struct {
	Type    ErrorType `json:"type"`
	BatchID int64     `json:"batch_id"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *BatchError) Error() string {
	if e == nil {
		return "unknown batch error"
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] batch %d: %s: %v", e.Type, e.BatchID, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] batch %d: %s", e.Type, e.BatchID, e.Message)
}

// Unwrap returns the underlying error
func (e *BatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any BatchError of the same type, so sentinel values like
// ErrNotFound work with errors.Is.
func (e *BatchError) Is(target error) bool {
	t, ok := target.(*BatchError)
	if !ok || e == nil {
		return false
	}
	return t.BatchID == 0 && t.Message == "" && t.Type == e.Type
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound           = &BatchError{Type: ErrorTypeNotFound}
	ErrUnsupportedDataset = &BatchError{Type: ErrorTypeUnsupportedDataset}
	ErrExecution          = &BatchError{Type: ErrorTypeExecution}
)

// NewNotFoundError reports an unknown batch id.
func NewNotFoundError(batchID int64) *BatchError {
	return &BatchError{
		Type:    ErrorTypeNotFound,
		BatchID: batchID,
		Message: fmt.Sprintf("batch %d not found", batchID),
	}
}

// NewUnsupportedDatasetError reports a dataset without a staging table.
func NewUnsupportedDatasetError(batchID int64, dataset string) *BatchError {
	return &BatchError{
		Type:    ErrorTypeUnsupportedDataset,
		BatchID: batchID,
		Message: fmt.Sprintf("unsupported dataset %q", dataset),
	}
}

// NewExecutionError wraps a failure raised while processing a batch.
func NewExecutionError(batchID int64, cause error) *BatchError {
	return &BatchError{
		Type:    ErrorTypeExecution,
		BatchID: batchID,
		Message: "batch processing failed",
		Cause:   cause,
	}
}

// GetErrorType returns the type of err, or "" when it is not a BatchError.
func GetErrorType(err error) ErrorType {
	var bErr *BatchError
	if errors.As(err, &bErr) {
		return bErr.Type
	}
	return ""
}
