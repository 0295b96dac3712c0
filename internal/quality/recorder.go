// Package quality records data-quality issues raised while cleansing staged
// rows. Issues are buffered per row and written when the row's
// accept/reject decision is made.
package quality

import (
	"context"
	"fmt"
	"log/slog"

	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/pkg/contracts/domain"
)

// IssueWriter persists issues. Each call is expected to be atomic.
type IssueWriter interface {
	InsertIssues(ctx context.Context, issues []domain.DQIssue) error
}

// Row accumulates the issues found while validating a single staging row.
type Row struct {
	Number int
	issues []domain.DQIssue
}

// NewRow starts issue accumulation for a staging row.
func NewRow(number int) *Row {
	return &Row{Number: number}
}

// Add appends an issue to the row.
func (r *Row) Add(issueType domain.IssueType, message string, context map[string]interface{}) {
	n := r.Number
	r.issues = append(r.issues, domain.DQIssue{
		RowNumber: &n,
		IssueType: issueType,
		Message:   message,
		Context:   context,
	})
}

// HasIssues reports whether any issue has been added.
func (r *Row) HasIssues() bool {
	return len(r.issues) > 0
}

// Issues returns the accumulated issues.
func (r *Row) Issues() []domain.DQIssue {
	return r.issues
}

// Recorder writes row issues for one batch and keeps running totals.
type Recorder struct {
	writer  IssueWriter
	batchID int64
	dataset domain.Dataset
	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger

	total  int
	byType map[domain.IssueType]int
}

// NewRecorder creates a recorder for a batch. metrics may be nil.
func NewRecorder(writer IssueWriter, batchID int64, dataset domain.Dataset, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		writer:  writer,
		batchID: batchID,
		dataset: dataset,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "dq_recorder"), slog.Int64("batch_id", batchID)),
		byType:  make(map[domain.IssueType]int),
	}
}

// Commit flushes the issues of a row in one write. Rows without issues are
// a no-op. The row is emptied afterwards.
func (rec *Recorder) Commit(ctx context.Context, row *Row) error {
	if row == nil || len(row.issues) == 0 {
		return nil
	}

	issues := make([]domain.DQIssue, len(row.issues))
	for i, issue := range row.issues {
		issue.BatchID = rec.batchID
		issue.Dataset = rec.dataset
		issues[i] = issue
	}

	if err := rec.writer.InsertIssues(ctx, issues); err != nil {
		return fmt.Errorf("record issues for row %d: %w", row.Number, err)
	}

	for _, issue := range issues {
		rec.total++
		rec.byType[issue.IssueType]++
		infrastructure.RecordDQIssue(ctx, rec.metrics, string(rec.dataset), string(issue.IssueType))
	}
	rec.logger.DebugContext(ctx, "Recorded row issues",
		slog.Int("row_number", row.Number),
		slog.Int("issues", len(issues)))

	row.issues = nil
	return nil
}

// Total returns the number of issues written so far.
func (rec *Recorder) Total() int {
	return rec.total
}

// Counts returns the number of written issues per type.
func (rec *Recorder) Counts() map[domain.IssueType]int {
	out := make(map[domain.IssueType]int, len(rec.byType))
	for k, v := range rec.byType {
		out[k] = v
	}
	return out
}
