// Package api contains API contract definitions for the KPI warehouse.
// Version v1 represents the current stable API version.
package api

import (
	"kpiwarehouse/pkg/contracts/domain"
)

// KPICalculateRequest triggers a KPI calculation for a batch
type KPICalculateRequest struct {
	BatchID    int64   `json:"batch_id" validate:"required,gt=0"`
	PeriodKeys []int64 `json:"period_keys,omitempty" validate:"omitempty,dive,gt=0"`
}

// IssueListRequest filters DQ issues of a batch
type IssueListRequest struct {
	IssueType string `json:"type" query:"type" validate:"omitempty,oneof=invalid_json missing_value invalid_date invalid_value duplicate_key anomaly"`
}

// IssueExportRequest selects the export format of DQ issues
type IssueExportRequest struct {
	Format string `json:"format" query:"format" validate:"omitempty,oneof=xlsx csv"`
}

// KPIResultsRequest filters calculated KPI rows
type KPIResultsRequest struct {
	BatchID int64 `json:"batch_id" query:"batch_id" validate:"required,gt=0"`
}

// KPICalculateResponse summarizes a KPI calculation
type KPICalculateResponse struct {
	BatchID      int64 `json:"batch_id"`
	MonthlyRows  int   `json:"monthly_rows"`
	QuarterRows  int   `json:"quarter_rows"`
	YearRows     int   `json:"year_rows"`
	ProcessingMs int64 `json:"processing_ms"`
}

// IssueListResponse lists DQ issues of a batch
type IssueListResponse struct {
	BatchID int64            `json:"batch_id"`
	Count   int              `json:"count"`
	Issues  []domain.DQIssue `json:"issues"`
}

// KPIResultsResponse lists calculated KPI rows
type KPIResultsResponse struct {
	BatchID int64                      `json:"batch_id"`
	Count   int                        `json:"count"`
	Results []domain.CalculatedKpiFact `json:"results"`
}
