package domain

import (
	"time"
)

// Dataset identifies the kind of upload a batch carries.
type Dataset string

const (
	DatasetOperations Dataset = "operations"
	DatasetKPI        Dataset = "kpi"
)

// BatchStatus represents the processing status of an upload batch
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// Batch is an upload batch together with its processing bookkeeping.
type Batch struct {
	ID            int64       `json:"id" db:"id"`
	Dataset       Dataset     `json:"dataset" db:"dataset"`
	Status        BatchStatus `json:"status" db:"status"`
	ProcessedRows *int        `json:"processed_rows,omitempty" db:"processed_rows"`
	DQErrorCount  *int        `json:"dq_error_count,omitempty" db:"dq_error_count"`
	ProcessingMs  *int64      `json:"processing_ms,omitempty" db:"processing_ms"`
	Message       string      `json:"message,omitempty" db:"message"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

// StagingRow is a raw uploaded row parked before cleansing.
// Payload holds the JSON text exactly as staged.
type StagingRow struct {
	ID        int64   `json:"id" db:"id"`
	BatchID   int64   `json:"batch_id" db:"batch_id"`
	Dataset   Dataset `json:"dataset" db:"-"`
	RowNumber int     `json:"row_number" db:"row_number"`
	Payload   string  `json:"payload" db:"data"`
}

// BatchSummary is the final bookkeeping written for a completed batch.
type BatchSummary struct {
	ProcessedRows int    `json:"processed_rows"`
	DQErrorCount  int    `json:"dq_error_count"`
	ProcessingMs  int64  `json:"processing_ms"`
	Message       string `json:"message"`
}

// BatchResult is returned to callers of a batch run.
type BatchResult struct {
	BatchID      int64       `json:"batch_id"`
	Dataset      Dataset     `json:"dataset"`
	Status       BatchStatus `json:"status"`
	LoadedRows   int         `json:"loaded_rows"`
	DQIssues     int         `json:"dq_issues"`
	ProcessingMs int64       `json:"processing_ms"`
}
