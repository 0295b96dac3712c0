package kpi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpiwarehouse/internal/config"
	"kpiwarehouse/internal/warehouse"
	"kpiwarehouse/pkg/contracts/domain"
)

func f(v float64) *float64 { return &v }

func s(v string) *string { return &v }

func newTestStore(t *testing.T) *warehouse.Store {
	t.Helper()
	store, err := warehouse.Open(context.Background(), config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedWarehouse(t *testing.T, store *warehouse.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.LoadFactOperations(ctx, 1, []domain.FactOperationRecord{
		{FactoryCode: "F1", Year: 2024, Month: 1, Revenue: f(100), Cost: f(40)},
		{FactoryCode: "F1", Year: 2024, Month: 2, Revenue: f(200), Cost: f(50)},
		{FactoryCode: "F1", Year: 2024, Month: 4, Revenue: f(300)},
	}))
	require.NoError(t, store.LoadFactKpi(ctx, 2, []domain.FactKpiRecord{
		{EmployeeID: "E1", MetricCode: "OEE", Value: 0.6, Target: f(0.7), Year: 2024, Month: 2},
		{EmployeeID: "E1", MetricCode: "oee", Value: 0.8, Target: f(0.9), Year: 2024, Month: 3},
	}))

	require.NoError(t, store.UpsertMetricDefinitions(ctx, []domain.MetricDefinition{
		// ratio depends on margin, which is configured after it.
		{MetricCode: "ratio", Scope: domain.ScopeFactory, Formula: s("ratio = margin / revenue"), Aggregation: domain.AggregationAvg},
		{MetricCode: "margin", Scope: domain.ScopeFactory, Formula: s("margin = revenue - cost"), Weight: f(2)},
		{MetricCode: "revenue", Scope: domain.ScopeFactory, Aggregation: domain.AggregationMax},
		{MetricCode: "cycle_a", Scope: domain.ScopeFactory, Formula: s("cycle_b + 1")},
		{MetricCode: "cycle_b", Scope: domain.ScopeFactory, Formula: s("cycle_a + 1")},
		{MetricCode: "OEE", Scope: domain.ScopeEmployee, Aggregation: domain.AggregationAvg, TargetSource: s(domain.TargetSourceFactKpi)},
	}))
}

func find(t *testing.T, rows []domain.CalculatedKpiFact, metric string, grain domain.Grain, periodKey int64) domain.CalculatedKpiFact {
	t.Helper()
	for _, r := range rows {
		if r.MetricCode == metric && r.Grain == grain && r.PeriodKey == periodKey {
			return r
		}
	}
	require.Failf(t, "row not found", "%s %s %d", metric, grain, periodKey)
	return domain.CalculatedKpiFact{}
}

func period(t *testing.T, store *warehouse.Store, month, year int) int64 {
	t.Helper()
	key, err := store.GetOrCreatePeriod(context.Background(), month, year)
	require.NoError(t, err)
	return key
}

func TestCalculate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedWarehouse(t, store)

	engine := NewEngine(store, nil)
	result, err := engine.Calculate(ctx, 42, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(42), result.BatchID)
	assert.Equal(t, 11, result.MonthlyRows)
	assert.Equal(t, 7, result.QuarterRows)
	assert.Equal(t, 4, result.YearRows)

	rows, err := store.ListCalculated(ctx, 42)
	require.NoError(t, err)
	require.Len(t, rows, result.Total())

	jan, apr := period(t, store, 1, 2024), period(t, store, 4, 2024)
	q1, q2, year := period(t, store, 3, 2024), period(t, store, 6, 2024), period(t, store, 12, 2024)

	t.Run("monthly formulas", func(t *testing.T) {
		assert.Equal(t, 60.0, *find(t, rows, "margin", domain.GrainMonth, jan).Value)
		assert.InDelta(t, 0.6, *find(t, rows, "ratio", domain.GrainMonth, jan).Value, 1e-9)
		assert.Equal(t, 2.0, *find(t, rows, "margin", domain.GrainMonth, jan).Weight)
	})

	t.Run("null inputs give null metrics", func(t *testing.T) {
		assert.Nil(t, find(t, rows, "margin", domain.GrainMonth, apr).Value)
		assert.Nil(t, find(t, rows, "ratio", domain.GrainMonth, apr).Value)
		assert.Equal(t, 300.0, *find(t, rows, "revenue", domain.GrainMonth, apr).Value)
	})

	t.Run("cyclic metrics are dropped", func(t *testing.T) {
		for _, r := range rows {
			assert.NotContains(t, []string{"cycle_a", "cycle_b"}, r.MetricCode)
		}
	})

	t.Run("rollups", func(t *testing.T) {
		assert.Equal(t, 210.0, *find(t, rows, "margin", domain.GrainQuarter, q1).Value)
		assert.Nil(t, find(t, rows, "margin", domain.GrainQuarter, q2).Value)
		assert.Equal(t, 300.0, *find(t, rows, "revenue", domain.GrainYear, year).Value)
		assert.InDelta(t, 0.675, *find(t, rows, "ratio", domain.GrainYear, year).Value, 1e-9)
	})

	t.Run("sum year rollup equals monthly sum", func(t *testing.T) {
		var sum float64
		for _, r := range rows {
			if r.MetricCode == "margin" && r.Grain == domain.GrainMonth && r.Value != nil {
				sum += *r.Value
			}
		}
		assert.Equal(t, sum, *find(t, rows, "margin", domain.GrainYear, year).Value)
	})

	t.Run("employee targets", func(t *testing.T) {
		mar := find(t, rows, "OEE", domain.GrainMonth, q1)
		assert.Equal(t, domain.ScopeEmployee, mar.Scope)
		assert.Equal(t, 0.8, *mar.Value)
		assert.Equal(t, 0.9, *mar.Target)

		quarter := find(t, rows, "OEE", domain.GrainQuarter, q1)
		assert.InDelta(t, 0.7, *quarter.Value, 1e-9)
		assert.InDelta(t, 0.8, *quarter.Target, 1e-9)
	})
}

func TestCalculateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedWarehouse(t, store)
	engine := NewEngine(store, nil)

	_, err := engine.Calculate(ctx, 7, nil)
	require.NoError(t, err)
	first, err := store.ListCalculated(ctx, 7)
	require.NoError(t, err)

	_, err = engine.Calculate(ctx, 7, nil)
	require.NoError(t, err)
	second, err := store.ListCalculated(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// periodFailStore fails period lookups so a recompute breaks during rollup.
type periodFailStore struct {
	*warehouse.Store
}

func (periodFailStore) GetOrCreatePeriod(context.Context, int, int) (int64, error) {
	return 0, errors.New("period table locked")
}

func TestFailedRecalculationKeepsPreviousRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedWarehouse(t, store)

	_, err := NewEngine(store, nil).Calculate(ctx, 7, nil)
	require.NoError(t, err)
	before, err := store.ListCalculated(ctx, 7)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	_, err = NewEngine(periodFailStore{store}, nil).Calculate(ctx, 7, nil)
	require.Error(t, err)

	after, err := store.ListCalculated(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCalculatePeriodFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedWarehouse(t, store)

	jan := period(t, store, 1, 2024)
	result, err := NewEngine(store, nil).Calculate(ctx, 3, []int64{jan})
	require.NoError(t, err)

	// ratio, margin and revenue for F1 in January only.
	assert.Equal(t, 3, result.MonthlyRows)
	assert.Equal(t, 3, result.QuarterRows)
	assert.Equal(t, 3, result.YearRows)
}

func TestCalculateWithoutDefinitions(t *testing.T) {
	store := newTestStore(t)
	result, err := NewEngine(store, nil).Calculate(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Total())
}
