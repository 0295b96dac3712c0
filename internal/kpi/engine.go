package kpi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/internal/kpi/expr"
	"kpiwarehouse/pkg/contracts/domain"
)

// Store is the warehouse access the engine needs.
type Store interface {
	PeriodResolver
	ListMetricDefinitions(ctx context.Context) ([]domain.MetricDefinition, error)
	PeriodIndex(ctx context.Context) (map[int64]domain.Period, error)
	FactoryMonthlyFacts(ctx context.Context, periodKeys []int64) ([]domain.MonthlyFacts, error)
	EmployeeMonthlyFacts(ctx context.Context, periodKeys []int64) ([]domain.MonthlyFacts, error)
	ReplaceCalculated(ctx context.Context, batchID int64, rows []domain.CalculatedKpiFact) error
}

// Result summarizes one calculation run.
type Result struct {
	BatchID      int64 `json:"batch_id"`
	MonthlyRows  int   `json:"monthly_rows"`
	QuarterRows  int   `json:"quarter_rows"`
	YearRows     int   `json:"year_rows"`
	ProcessingMs int64 `json:"processing_ms"`
}

// Total returns the number of rows written.
func (r *Result) Total() int {
	return r.MonthlyRows + r.QuarterRows + r.YearRows
}

// Engine calculates KPIs for a batch.
type Engine struct {
	store     Store
	evaluator *Evaluator
	metrics   *infrastructure.BusinessMetrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records calculation metrics.
func WithMetrics(m *infrastructure.BusinessMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithFunction registers an arithmetic function for formulas.
func WithFunction(name string, fn expr.Func) Option {
	return func(e *Engine) {
		e.evaluator.RegisterFunction(name, fn)
	}
}

// WithContextFunction registers a whole-context function. A metric whose
// formula is name is computed by fn.
func WithContextFunction(name string, fn ContextFunc) Option {
	return func(e *Engine) {
		e.evaluator.RegisterContextFunction(name, fn)
	}
}

// NewEngine creates a KPI engine over store.
func NewEngine(store Store, logger *slog.Logger, opts ...Option) *Engine {
	logger = infrastructure.WithComponent(logger, "kpi_engine")
	e := &Engine{
		store:     store,
		evaluator: NewEvaluator(logger),
		tracer:    otel.Tracer(infrastructure.InstrumentationName),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calculate replaces the calculated KPI rows of batchID with fresh monthly,
// quarterly and yearly results. A failed run leaves the previous rows in
// place. periodKeys optionally restricts the
// monthly facts read.
func (e *Engine) Calculate(ctx context.Context, batchID int64, periodKeys []int64) (*Result, error) {
	start := time.Now()
	ctx = infrastructure.WithBatchID(infrastructure.EnsureTraceID(ctx), batchID)
	ctx, span := e.tracer.Start(ctx, "kpi.calculate", trace.WithAttributes(
		attribute.Int64("batch_id", batchID),
		attribute.Int("period_filter", len(periodKeys)),
	))
	defer span.End()

	log := e.logger.With(slog.Int64("batch_id", batchID))
	log.InfoContext(ctx, "KPI calculation started", slog.Int("period_filter", len(periodKeys)))

	result, err := e.calculate(ctx, batchID, periodKeys)
	elapsed := time.Since(start)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		infrastructure.RecordKPICalculation(ctx, e.metrics, false, elapsed, 0)
		log.ErrorContext(ctx, "KPI calculation failed", slog.String("error", err.Error()))
		return nil, err
	}

	result.ProcessingMs = elapsed.Milliseconds()
	infrastructure.RecordKPICalculation(ctx, e.metrics, true, elapsed, result.Total())
	span.SetAttributes(attribute.Int("rows_written", result.Total()))
	log.InfoContext(ctx, "KPI calculation completed",
		slog.Int("monthly_rows", result.MonthlyRows),
		slog.Int("quarter_rows", result.QuarterRows),
		slog.Int("year_rows", result.YearRows),
		slog.Int64("processing_ms", result.ProcessingMs))
	return result, nil
}

func (e *Engine) calculate(ctx context.Context, batchID int64, periodKeys []int64) (*Result, error) {
	defs, err := e.store.ListMetricDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load metric definitions: %w", err)
	}
	index, err := e.store.PeriodIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("load period index: %w", err)
	}

	var factoryDefs, employeeDefs []domain.MetricDefinition
	byCode := make(map[string]domain.MetricDefinition, len(defs))
	for _, def := range defs {
		byCode[def.MetricCode] = def
		switch def.Scope {
		case domain.ScopeFactory:
			factoryDefs = append(factoryDefs, def)
		case domain.ScopeEmployee:
			employeeDefs = append(employeeDefs, def)
		}
	}

	factoryFacts, err := e.store.FactoryMonthlyFacts(ctx, periodKeys)
	if err != nil {
		return nil, err
	}
	employeeFacts, err := e.store.EmployeeMonthlyFacts(ctx, periodKeys)
	if err != nil {
		return nil, err
	}

	monthly := e.monthly(domain.ScopeFactory, factoryFacts, factoryDefs)
	monthly = append(monthly, e.monthly(domain.ScopeEmployee, employeeFacts, employeeDefs)...)

	quarters, err := rollup(ctx, e.store, monthly, byCode, index, domain.GrainQuarter)
	if err != nil {
		return nil, err
	}
	years, err := rollup(ctx, e.store, monthly, byCode, index, domain.GrainYear)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.CalculatedKpiFact, 0, len(monthly)+len(quarters)+len(years))
	rows = append(rows, monthly...)
	rows = append(rows, quarters...)
	rows = append(rows, years...)
	for i := range rows {
		rows[i].BatchID = batchID
	}
	if err := e.store.ReplaceCalculated(ctx, batchID, rows); err != nil {
		return nil, err
	}

	return &Result{
		BatchID:     batchID,
		MonthlyRows: len(monthly),
		QuarterRows: len(quarters),
		YearRows:    len(years),
	}, nil
}

// monthly resolves the metrics of one scope for each (member, month).
func (e *Engine) monthly(scope domain.Scope, facts []domain.MonthlyFacts, defs []domain.MetricDefinition) []domain.CalculatedKpiFact {
	if len(defs) == 0 {
		return nil
	}

	var out []domain.CalculatedKpiFact
	for _, f := range facts {
		computed := e.resolve(defs, Context(f.Values))
		targets := Context(f.Targets)

		for _, def := range defs {
			value, ok := computed[def.MetricCode]
			if !ok {
				continue
			}
			row := domain.CalculatedKpiFact{
				PeriodKey:  f.PeriodKey,
				Grain:      domain.GrainMonth,
				Scope:      scope,
				ScopeID:    f.ScopeID,
				MetricCode: def.MetricCode,
				Value:      value,
				Weight:     def.Weight,
			}
			if def.TargetSource != nil && *def.TargetSource == domain.TargetSourceFactKpi {
				row.Target, _ = targets.Lookup(def.MetricCode)
			}
			out = append(out, row)
		}
	}
	return out
}
