package warehouse

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS upload_batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		processed_rows INTEGER,
		dq_error_count INTEGER,
		processing_ms INTEGER,
		message TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		completed_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS stg_operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL REFERENCES upload_batches(id),
		row_number INTEGER NOT NULL,
		data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stg_kpi_raw (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL REFERENCES upload_batches(id),
		row_number INTEGER NOT NULL,
		data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dq_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL REFERENCES upload_batches(id),
		dataset TEXT NOT NULL,
		row_number INTEGER,
		issue_type TEXT NOT NULL,
		issue_message TEXT,
		context TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dq_issues_batch ON dq_issues(batch_id, issue_type)`,
	`CREATE TABLE IF NOT EXISTS dim_period (
		period_key INTEGER PRIMARY KEY AUTOINCREMENT,
		month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		quarter INTEGER NOT NULL CHECK (quarter BETWEEN 1 AND 4),
		year INTEGER NOT NULL,
		UNIQUE (year, month)
	)`,
	`CREATE TABLE IF NOT EXISTS dim_factory (
		factory_key INTEGER PRIMARY KEY AUTOINCREMENT,
		factory_code TEXT NOT NULL UNIQUE,
		factory_name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS dim_employee (
		employee_key INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL UNIQUE,
		employee_name TEXT,
		factory_key INTEGER REFERENCES dim_factory(factory_key)
	)`,
	`CREATE TABLE IF NOT EXISTS factory_code_alias (
		alias TEXT PRIMARY KEY,
		factory_code TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS employee_id_alias (
		alias TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fact_operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		factory_key INTEGER NOT NULL REFERENCES dim_factory(factory_key),
		period_key INTEGER NOT NULL REFERENCES dim_period(period_key),
		revenue REAL,
		cost REAL,
		output_qty REAL,
		downtime_hours REAL,
		extra_metrics TEXT,
		batch_id INTEGER,
		UNIQUE (factory_key, period_key)
	)`,
	`CREATE TABLE IF NOT EXISTS fact_kpi (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_key INTEGER NOT NULL REFERENCES dim_employee(employee_key),
		factory_key INTEGER REFERENCES dim_factory(factory_key),
		period_key INTEGER NOT NULL REFERENCES dim_period(period_key),
		metric_code TEXT NOT NULL,
		metric_key TEXT NOT NULL,
		value REAL,
		target REAL,
		batch_id INTEGER,
		UNIQUE (employee_key, period_key, metric_key)
	)`,
	`CREATE TABLE IF NOT EXISTS kpi_metrics (
		metric_code TEXT PRIMARY KEY,
		scope TEXT NOT NULL CHECK (scope IN ('factory', 'employee')),
		formula TEXT,
		aggregation TEXT DEFAULT 'sum',
		weight REAL,
		target_source TEXT,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS fact_kpi_calc (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL,
		period_key INTEGER NOT NULL REFERENCES dim_period(period_key),
		grain TEXT NOT NULL DEFAULT 'month' CHECK (grain IN ('month', 'quarter', 'year')),
		scope TEXT NOT NULL CHECK (scope IN ('factory', 'employee')),
		scope_id INTEGER NOT NULL,
		metric_code TEXT NOT NULL,
		value REAL,
		target REAL,
		weight REAL,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		UNIQUE (batch_id, scope, scope_id, metric_code, period_key, grain)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fact_kpi_calc_batch ON fact_kpi_calc(batch_id)`,
}

// Migrate creates every warehouse table that does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
