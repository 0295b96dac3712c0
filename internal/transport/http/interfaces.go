package http

import (
	"context"
	"io"

	"kpiwarehouse/internal/exporter"
	"kpiwarehouse/internal/kpi"
	"kpiwarehouse/pkg/contracts/domain"
)

// BatchRunner cleanses and loads one staged batch.
type BatchRunner interface {
	Run(ctx context.Context, batchID int64) (*domain.BatchResult, error)
}

// Calculator runs the KPI engine for a batch.
type Calculator interface {
	Calculate(ctx context.Context, batchID int64, periodKeys []int64) (*kpi.Result, error)
}

// WarehouseReader answers the read-only queries of the API.
type WarehouseReader interface {
	GetBatch(ctx context.Context, id int64) (*domain.Batch, error)
	ListIssues(ctx context.Context, batchID int64, issueType domain.IssueType) ([]domain.DQIssue, error)
	ListCalculated(ctx context.Context, batchID int64) ([]domain.CalculatedKpiFact, error)
}

// BatchExporter writes the issue export of a batch.
type BatchExporter interface {
	Export(ctx context.Context, w io.Writer, batchID int64, format exporter.Format) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
