// Package warehouse is the relational store behind the ETL pipeline and the
// KPI engine. It owns the SQLite schema (upload batches, staging tables, DQ
// issues, dimensions, facts and calculated KPIs) and exposes typed
// operations over it.
//
// Fact loads are upserts keyed by their dimension keys, so reloading the
// same batch is idempotent. Period rows are created on demand through
// GetOrCreatePeriod.
package warehouse
