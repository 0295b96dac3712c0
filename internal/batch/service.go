package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"kpiwarehouse/internal/cleansing"
	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/internal/kpi"
	"kpiwarehouse/internal/quality"
	"kpiwarehouse/internal/warehouse"
	"kpiwarehouse/pkg/contracts/domain"
)

// StagingTables maps each supported dataset to its staging table.
var StagingTables = map[domain.Dataset]string{
	domain.DatasetOperations: "stg_operations",
	domain.DatasetKPI:        "stg_kpi_raw",
}

// Store is the warehouse access a batch run needs.
type Store interface {
	quality.IssueWriter
	GetBatch(ctx context.Context, id int64) (*domain.Batch, error)
	SetBatchStatus(ctx context.Context, id int64, status domain.BatchStatus, message string) error
	FinalizeBatch(ctx context.Context, id int64, summary domain.BatchSummary) error
	StagingRows(ctx context.Context, table string, batchID int64) ([]domain.StagingRow, error)
	LoadAliasMaps(ctx context.Context) (domain.AliasMaps, error)
	LoadFactOperations(ctx context.Context, batchID int64, records []domain.FactOperationRecord) error
	LoadFactKpi(ctx context.Context, batchID int64, records []domain.FactKpiRecord) error
}

// Calculator runs the KPI engine for a batch.
type Calculator interface {
	Calculate(ctx context.Context, batchID int64, periodKeys []int64) (*kpi.Result, error)
}

// Service runs batches.
type Service struct {
	store      Store
	cleanser   *cleansing.Cleanser
	calculator Calculator
	metrics    *infrastructure.BusinessMetrics
	tracer     trace.Tracer
	logger     *slog.Logger
	runs       singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithAutoCalculate runs calc after every completed batch.
func WithAutoCalculate(calc Calculator) Option {
	return func(s *Service) {
		s.calculator = calc
	}
}

// WithMetrics records batch metrics.
func WithMetrics(m *infrastructure.BusinessMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a batch service.
func NewService(store Store, cleanser *cleansing.Cleanser, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cleanser: cleanser,
		tracer:   otel.Tracer(infrastructure.InstrumentationName),
		logger:   infrastructure.WithComponent(logger, "batch_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run cleanses and loads a batch. Callers running the same batch id at the
// same time share a single execution and its result. The shared execution is
// detached from every caller's cancellation; a caller whose ctx ends stops
// waiting and gets ctx.Err() while the run continues for the others.
func (s *Service) Run(ctx context.Context, batchID int64) (*domain.BatchResult, error) {
	runCtx := context.WithoutCancel(ctx)
	ch := s.runs.DoChan(strconv.FormatInt(batchID, 10), func() (interface{}, error) {
		return s.run(runCtx, batchID)
	})

	select {
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Stopped waiting for batch run",
			slog.Int64("batch_id", batchID),
			slog.String("error", ctx.Err().Error()))
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.DebugContext(ctx, "Joined in-flight batch run", slog.Int64("batch_id", batchID))
		}
		if res.Err != nil {
			return nil, res.Err
		}
		result := *res.Val.(*domain.BatchResult)
		return &result, nil
	}
}

func (s *Service) run(ctx context.Context, batchID int64) (*domain.BatchResult, error) {
	start := time.Now()
	ctx = infrastructure.WithBatchID(infrastructure.EnsureTraceID(ctx), batchID)
	ctx, span := s.tracer.Start(ctx, "batch.run", trace.WithAttributes(attribute.Int64("batch_id", batchID)))
	defer span.End()

	log := s.logger.With(slog.Int64("batch_id", batchID))

	batch, err := s.store.GetBatch(ctx, batchID)
	if errors.Is(err, warehouse.ErrNotFound) {
		log.WarnContext(ctx, "Batch not found")
		return nil, NewNotFoundError(batchID)
	}
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, NewExecutionError(batchID, err)
	}
	span.SetAttributes(attribute.String("dataset", string(batch.Dataset)))
	log = log.With(slog.String("dataset", string(batch.Dataset)))

	table, ok := StagingTables[batch.Dataset]
	if !ok {
		bErr := NewUnsupportedDatasetError(batchID, string(batch.Dataset))
		if err := s.store.SetBatchStatus(ctx, batchID, domain.BatchStatusFailed, bErr.Message); err != nil {
			log.ErrorContext(ctx, "Failed to mark batch failed", slog.String("error", err.Error()))
		}
		infrastructure.RecordBatchRun(ctx, s.metrics, string(batch.Dataset), string(domain.BatchStatusFailed), time.Since(start), 0)
		log.WarnContext(ctx, "Unsupported dataset")
		return nil, bErr
	}

	log.InfoContext(ctx, "Batch run started", slog.String("staging_table", table))
	result, err := s.process(ctx, batch, table, start)
	if err != nil {
		s.fail(ctx, log, batch, err, start)
		return nil, NewExecutionError(batchID, err)
	}

	infrastructure.RecordBatchRun(ctx, s.metrics, string(batch.Dataset), string(result.Status), time.Since(start), result.LoadedRows)
	log.InfoContext(ctx, "Batch run completed",
		slog.Int("loaded_rows", result.LoadedRows),
		slog.Int("dq_issues", result.DQIssues),
		slog.Int64("processing_ms", result.ProcessingMs))

	if s.calculator != nil {
		if _, err := s.calculator.Calculate(ctx, batchID, nil); err != nil {
			log.ErrorContext(ctx, "KPI auto-calculation failed", slog.String("error", err.Error()))
		}
	}
	return result, nil
}

func (s *Service) process(ctx context.Context, batch *domain.Batch, table string, start time.Time) (*domain.BatchResult, error) {
	if err := s.store.SetBatchStatus(ctx, batch.ID, domain.BatchStatusProcessing, ""); err != nil {
		return nil, err
	}

	rows, err := s.store.StagingRows(ctx, table, batch.ID)
	if err != nil {
		return nil, err
	}
	aliases, err := s.store.LoadAliasMaps(ctx)
	if err != nil {
		return nil, fmt.Errorf("load alias maps: %w", err)
	}

	rec := quality.NewRecorder(s.store, batch.ID, batch.Dataset, s.metrics, s.logger)

	var loaded int
	switch batch.Dataset {
	case domain.DatasetOperations:
		records, err := s.cleanser.CleanseOperations(ctx, rows, aliases, rec)
		if err != nil {
			return nil, err
		}
		if err := s.store.LoadFactOperations(ctx, batch.ID, records); err != nil {
			return nil, err
		}
		loaded = len(records)
	case domain.DatasetKPI:
		records, err := s.cleanser.CleanseKPI(ctx, rows, aliases, rec)
		if err != nil {
			return nil, err
		}
		if err := s.store.LoadFactKpi(ctx, batch.ID, records); err != nil {
			return nil, err
		}
		loaded = len(records)
	}

	elapsed := time.Since(start).Milliseconds()
	summary := domain.BatchSummary{
		ProcessedRows: loaded,
		DQErrorCount:  rec.Total(),
		ProcessingMs:  elapsed,
		Message:       fmt.Sprintf("Loaded %d rows with %d dq issues", loaded, rec.Total()),
	}
	if err := s.store.FinalizeBatch(ctx, batch.ID, summary); err != nil {
		return nil, err
	}

	return &domain.BatchResult{
		BatchID:      batch.ID,
		Dataset:      batch.Dataset,
		Status:       domain.BatchStatusCompleted,
		LoadedRows:   loaded,
		DQIssues:     rec.Total(),
		ProcessingMs: elapsed,
	}, nil
}

// fail marks the batch failed with the error message. The original error is
// what the caller sees even if the status update itself fails.
func (s *Service) fail(ctx context.Context, log *slog.Logger, batch *domain.Batch, cause error, start time.Time) {
	infrastructure.RecordError(ctx, cause)
	infrastructure.RecordBatchRun(ctx, s.metrics, string(batch.Dataset), string(domain.BatchStatusFailed), time.Since(start), 0)
	log.ErrorContext(ctx, "Batch run failed", slog.String("error", cause.Error()))

	if err := s.store.SetBatchStatus(context.WithoutCancel(ctx), batch.ID, domain.BatchStatusFailed, cause.Error()); err != nil {
		log.ErrorContext(ctx, "Failed to mark batch failed", slog.String("error", err.Error()))
	}
}
