package domain

import (
	"time"
)

// IssueType classifies a data-quality violation.
type IssueType string

const (
	IssueInvalidJSON  IssueType = "invalid_json"
	IssueMissingValue IssueType = "missing_value"
	IssueInvalidDate  IssueType = "invalid_date"
	IssueInvalidValue IssueType = "invalid_value"
	IssueDuplicateKey IssueType = "duplicate_key"
	IssueAnomaly      IssueType = "anomaly"
)

// DQIssue is an append-only record of a data-quality violation tied to a batch row.
type DQIssue struct {
	ID        int64                  `json:"id,omitempty" db:"id"`
	BatchID   int64                  `json:"batch_id" db:"batch_id"`
	Dataset   Dataset                `json:"dataset" db:"dataset"`
	RowNumber *int                   `json:"row_number,omitempty" db:"row_number"`
	IssueType IssueType              `json:"issue_type" db:"issue_type"`
	Message   string                 `json:"message" db:"issue_message"`
	Context   map[string]interface{} `json:"context,omitempty" db:"context"`
	CreatedAt time.Time              `json:"created_at,omitempty" db:"created_at"`
}
