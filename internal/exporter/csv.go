package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"kpiwarehouse/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// IssueHeaders are the columns of a DQ issue export.
var IssueHeaders = []string{"row_number", "issue_type", "message", "context", "created_at"}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteCSV writes headers and records to w.
func WriteCSV(w io.Writer, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteIssuesCSV writes DQ issues as CSV with a UTF-8 BOM.
func WriteIssuesCSV(w io.Writer, issues []domain.DQIssue) error {
	records := make([][]string, len(issues))
	for i, issue := range issues {
		records[i] = issueRecord(issue)
	}
	return WriteCSV(w, WriteOptions{
		Headers:   IssueHeaders,
		Records:   records,
		BOMPrefix: true,
	})
}

func issueRecord(issue domain.DQIssue) []string {
	created := ""
	if !issue.CreatedAt.IsZero() {
		created = issue.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		formatRowNumber(issue.RowNumber),
		string(issue.IssueType),
		issue.Message,
		formatContext(issue.Context),
		created,
	}
}
