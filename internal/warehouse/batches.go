package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"kpiwarehouse/pkg/contracts/domain"
)

var stagingTables = map[string]bool{
	"stg_operations": true,
	"stg_kpi_raw":    true,
}

// CreateBatch registers a new pending batch for a dataset.
func (s *Store) CreateBatch(ctx context.Context, dataset domain.Dataset) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO upload_batches (dataset, status, created_at) VALUES (?, ?, ?)`,
		string(dataset), string(domain.BatchStatusPending), now())
	if err != nil {
		return 0, fmt.Errorf("create batch: %w", err)
	}
	return res.LastInsertId()
}

// GetBatch loads a batch by id. It returns ErrNotFound for unknown ids.
func (s *Store) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	var (
		b                                domain.Batch
		dataset, status                  string
		processed, dqCount, processingMs sql.NullInt64
		message, createdAt, completedAt  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, dataset, status, processed_rows, dq_error_count, processing_ms,
		       message, created_at, completed_at
		FROM upload_batches WHERE id = ?`, id).
		Scan(&b.ID, &dataset, &status, &processed, &dqCount, &processingMs, &message, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %d: %w", id, err)
	}

	b.Dataset = domain.Dataset(dataset)
	b.Status = domain.BatchStatus(status)
	b.Message = message.String
	if processed.Valid {
		v := int(processed.Int64)
		b.ProcessedRows = &v
	}
	if dqCount.Valid {
		v := int(dqCount.Int64)
		b.DQErrorCount = &v
	}
	if processingMs.Valid {
		v := processingMs.Int64
		b.ProcessingMs = &v
	}
	if t := parseTime(createdAt); t != nil {
		b.CreatedAt = *t
	}
	b.CompletedAt = parseTime(completedAt)
	return &b, nil
}

// SetBatchStatus moves a batch to a new status with an optional message.
func (s *Store) SetBatchStatus(ctx context.Context, id int64, status domain.BatchStatus, message string) error {
	var completedAt any
	if status.IsTerminal() {
		completedAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE upload_batches SET status = ?, message = ?, completed_at = ? WHERE id = ?`,
		string(status), message, completedAt, id)
	if err != nil {
		return fmt.Errorf("set batch %d status %s: %w", id, status, err)
	}
	return nil
}

// FinalizeBatch writes the completion summary of a batch in one update.
func (s *Store) FinalizeBatch(ctx context.Context, id int64, summary domain.BatchSummary) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE upload_batches
		SET processed_rows = ?, dq_error_count = ?, processing_ms = ?,
		    status = ?, message = ?, completed_at = ?
		WHERE id = ?`,
		summary.ProcessedRows, summary.DQErrorCount, summary.ProcessingMs,
		string(domain.BatchStatusCompleted), summary.Message, now(), id)
	if err != nil {
		return fmt.Errorf("finalize batch %d: %w", id, err)
	}
	return nil
}

// StageRows appends raw JSON payloads to a staging table, numbering rows from 1.
func (s *Store) StageRows(ctx context.Context, table string, batchID int64, payloads []string) error {
	if !stagingTables[table] {
		return fmt.Errorf("unknown staging table %q", table)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO `+table+` (batch_id, row_number, data) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare staging insert: %w", err)
		}
		defer stmt.Close()

		for i, p := range payloads {
			if _, err := stmt.ExecContext(ctx, batchID, i+1, p); err != nil {
				return fmt.Errorf("stage row %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// StagingRows reads a batch's staging rows in read order (row id).
func (s *Store) StagingRows(ctx context.Context, table string, batchID int64) ([]domain.StagingRow, error) {
	if !stagingTables[table] {
		return nil, fmt.Errorf("unknown staging table %q", table)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, row_number, data FROM `+table+` WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.StagingRow
	for rows.Next() {
		var r domain.StagingRow
		if err := rows.Scan(&r.ID, &r.BatchID, &r.RowNumber, &r.Payload); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "Read staging rows",
		slog.String("table", table),
		slog.Int64("batch_id", batchID),
		slog.Int("rows", len(out)))
	return out, nil
}
