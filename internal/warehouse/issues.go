package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"kpiwarehouse/pkg/contracts/domain"
)

// InsertIssues appends data-quality issues in a single transaction.
func (s *Store) InsertIssues(ctx context.Context, issues []domain.DQIssue) error {
	if len(issues) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO dq_issues (batch_id, dataset, row_number, issue_type, issue_message, context, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare issue insert: %w", err)
		}
		defer stmt.Close()

		ts := now()
		for _, issue := range issues {
			var rowNumber, issueContext any
			if issue.RowNumber != nil {
				rowNumber = *issue.RowNumber
			}
			if len(issue.Context) > 0 {
				raw, err := json.Marshal(issue.Context)
				if err != nil {
					return fmt.Errorf("encode issue context: %w", err)
				}
				issueContext = string(raw)
			}
			if _, err := stmt.ExecContext(ctx, issue.BatchID, string(issue.Dataset), rowNumber,
				string(issue.IssueType), issue.Message, issueContext, ts); err != nil {
				return fmt.Errorf("insert issue: %w", err)
			}
		}
		return nil
	})
}

// ListIssues returns the issues of a batch in insertion order, optionally
// filtered by type.
func (s *Store) ListIssues(ctx context.Context, batchID int64, issueType domain.IssueType) ([]domain.DQIssue, error) {
	query := `SELECT id, batch_id, dataset, row_number, issue_type, issue_message, context, created_at
		FROM dq_issues WHERE batch_id = ?`
	args := []any{batchID}
	if issueType != "" {
		query += ` AND issue_type = ?`
		args = append(args, string(issueType))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	out := []domain.DQIssue{}
	for rows.Next() {
		var (
			issue                      domain.DQIssue
			dataset, typ               string
			rowNumber                  sql.NullInt64
			message, rawCtx, createdAt sql.NullString
		)
		if err := rows.Scan(&issue.ID, &issue.BatchID, &dataset, &rowNumber, &typ, &message, &rawCtx, &createdAt); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issue.Dataset = domain.Dataset(dataset)
		issue.IssueType = domain.IssueType(typ)
		issue.Message = message.String
		if rowNumber.Valid {
			n := int(rowNumber.Int64)
			issue.RowNumber = &n
		}
		if rawCtx.Valid && rawCtx.String != "" {
			if err := json.Unmarshal([]byte(rawCtx.String), &issue.Context); err != nil {
				return nil, fmt.Errorf("decode issue %d context: %w", issue.ID, err)
			}
		}
		if t := parseTime(createdAt); t != nil {
			issue.CreatedAt = *t
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

// CountIssues returns the number of issues recorded for a batch.
func (s *Store) CountIssues(ctx context.Context, batchID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dq_issues WHERE batch_id = ?`, batchID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}
	return n, nil
}
