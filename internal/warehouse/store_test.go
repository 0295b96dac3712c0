package warehouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpiwarehouse/internal/config"
	"kpiwarehouse/pkg/contracts/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func f(v float64) *float64 { return &v }

func TestBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateBatch(ctx, domain.DatasetOperations)
	require.NoError(t, err)

	b, err := s.GetBatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.DatasetOperations, b.Dataset)
	assert.Equal(t, domain.BatchStatusPending, b.Status)
	assert.Nil(t, b.ProcessedRows)
	assert.False(t, b.CreatedAt.IsZero())

	require.NoError(t, s.SetBatchStatus(ctx, id, domain.BatchStatusProcessing, ""))
	require.NoError(t, s.FinalizeBatch(ctx, id, domain.BatchSummary{
		ProcessedRows: 3, DQErrorCount: 2, ProcessingMs: 15, Message: "Loaded 3 rows with 2 dq issues",
	}))

	b, err = s.GetBatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, b.Status)
	require.NotNil(t, b.ProcessedRows)
	assert.Equal(t, 3, *b.ProcessedRows)
	assert.Equal(t, 2, *b.DQErrorCount)
	assert.Equal(t, int64(15), *b.ProcessingMs)
	assert.NotNil(t, b.CompletedAt)

	_, err = s.GetBatch(ctx, id+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStagingRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateBatch(ctx, domain.DatasetKPI)
	require.NoError(t, err)
	require.NoError(t, s.StageRows(ctx, "stg_kpi_raw", id, []string{`{"a":1}`, `{"b":2}`}))

	rows, err := s.StagingRows(ctx, "stg_kpi_raw", id)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].RowNumber)
	assert.Equal(t, `{"b":2}`, rows[1].Payload)

	_, err = s.StagingRows(ctx, "upload_batches; DROP TABLE x", id)
	assert.Error(t, err)
}

func TestIssues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id, err := s.CreateBatch(ctx, domain.DatasetOperations)
	require.NoError(t, err)

	row := 4
	require.NoError(t, s.InsertIssues(ctx, []domain.DQIssue{
		{BatchID: id, Dataset: domain.DatasetOperations, RowNumber: &row, IssueType: domain.IssueAnomaly,
			Message: "revenue exceeds threshold", Context: map[string]interface{}{"value": 2e6}},
		{BatchID: id, Dataset: domain.DatasetOperations, IssueType: domain.IssueMissingValue, Message: "date is required"},
	}))

	all, err := s.ListIssues(ctx, id, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 4, *all[0].RowNumber)
	assert.Equal(t, 2e6, all[0].Context["value"])
	assert.Nil(t, all[1].RowNumber)
	assert.Nil(t, all[1].Context)

	anomalies, err := s.ListIssues(ctx, id, domain.IssueAnomaly)
	require.NoError(t, err)
	assert.Len(t, anomalies, 1)

	n, err := s.CountIssues(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetOrCreatePeriodIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	k1, err := s.GetOrCreatePeriod(ctx, 5, 2024)
	require.NoError(t, err)
	k2, err := s.GetOrCreatePeriod(ctx, 5, 2024)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	_, err = s.GetOrCreatePeriod(ctx, 13, 2024)
	assert.Error(t, err)

	index, err := s.PeriodIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Period{Key: k1, Month: 5, Quarter: 2, Year: 2024}, index[k1])
}

func TestNormalizeCodes(t *testing.T) {
	factoryAliases := map[string]string{"plant-a": "F1", "F-2": "F2"}
	employeeAliases := map[string]string{"e-007": "E7"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"exact factory alias", NormalizeFactoryCode("F-2", factoryAliases), "F2"},
		{"case-insensitive factory alias", NormalizeFactoryCode(" PLANT-A ", factoryAliases), "F1"},
		{"unmapped factory upper-cased", NormalizeFactoryCode(" f9 ", factoryAliases), "F9"},
		{"blank factory", NormalizeFactoryCode("   ", factoryAliases), ""},
		{"employee alias", NormalizeEmployeeID("E-007", employeeAliases), "E7"},
		{"unmapped employee trimmed", NormalizeEmployeeID(" emp1 ", employeeAliases), "emp1"},
		{"blank employee", NormalizeEmployeeID("", employeeAliases), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestAliasMaps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutFactoryAlias(ctx, "plant-a", "F1"))
	require.NoError(t, s.PutFactoryAlias(ctx, "plant-a", "F3"))
	require.NoError(t, s.PutEmployeeAlias(ctx, "e-1", "E1"))

	maps, err := s.LoadAliasMaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"plant-a": "F3"}, maps.Factory)
	assert.Equal(t, map[string]string{"e-1": "E1"}, maps.Employee)
}

func TestLoadFactOperationsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	records := []domain.FactOperationRecord{
		{FactoryCode: "F1", Year: 2024, Month: 1, Revenue: f(100), Cost: f(40)},
		{FactoryCode: "F1", Year: 2024, Month: 2, Revenue: f(120), Extra: map[string]float64{"scrap": 3}},
	}
	require.NoError(t, s.LoadFactOperations(ctx, 1, records))
	require.NoError(t, s.LoadFactOperations(ctx, 1, records))

	var n int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM fact_operations`).Scan(&n))
	assert.Equal(t, 2, n)

	facts, err := s.FactoryMonthlyFacts(ctx, nil)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, 100.0, *facts[0].Values["revenue"])
	assert.Equal(t, 40.0, *facts[0].Values["cost"])
	assert.Nil(t, facts[0].Values["output_qty"])
	assert.Contains(t, facts[0].Values, "output_qty")
	assert.Equal(t, 3.0, *facts[1].Values["scrap"])

	filtered, err := s.FactoryMonthlyFacts(ctx, []int64{facts[1].PeriodKey})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, 120.0, *filtered[0].Values["revenue"])
}

func TestLoadFactKpi(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	factory := "F1"
	records := []domain.FactKpiRecord{
		{EmployeeID: "E1", FactoryCode: &factory, MetricCode: "OEE", Value: 0.8, Target: f(0.9), Year: 2024, Month: 3},
		{EmployeeID: "E1", MetricCode: "scrap", Value: 2, Year: 2024, Month: 3},
	}
	require.NoError(t, s.LoadFactKpi(ctx, 7, records))
	// Same key with different casing replaces the first row.
	require.NoError(t, s.LoadFactKpi(ctx, 7, []domain.FactKpiRecord{
		{EmployeeID: "E1", MetricCode: "oee", Value: 0.85, Target: f(0.95), Year: 2024, Month: 3},
	}))

	facts, err := s.EmployeeMonthlyFacts(ctx, nil)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 0.85, *facts[0].Values["oee"])
	assert.Equal(t, 0.95, *facts[0].Targets["oee"])
	assert.Equal(t, 2.0, *facts[0].Values["scrap"])
	assert.Nil(t, facts[0].Targets["scrap"])

	var factoryKey *int64
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT factory_key FROM dim_employee WHERE employee_id = 'E1'`).Scan(&factoryKey))
	assert.NotNil(t, factoryKey, "employee keeps its known factory")
}

func TestMetricDefinitionsKeepOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	formula := "margin = revenue - cost"
	src := domain.TargetSourceFactKpi
	require.NoError(t, s.UpsertMetricDefinitions(ctx, []domain.MetricDefinition{
		{MetricCode: "margin", Scope: domain.ScopeFactory, Formula: &formula},
		{MetricCode: "revenue", Scope: domain.ScopeFactory, Aggregation: "MAX"},
		{MetricCode: "oee", Scope: domain.ScopeEmployee, TargetSource: &src, Weight: f(0.5)},
	}))

	defs, err := s.ListMetricDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, "margin", defs[0].MetricCode)
	assert.Equal(t, domain.AggregationSum, defs[0].Aggregation)
	assert.Equal(t, domain.AggregationMax, defs[1].Aggregation)
	assert.Equal(t, 0.5, *defs[2].Weight)
	assert.Equal(t, domain.TargetSourceFactKpi, *defs[2].TargetSource)
}

func TestReplaceCalculated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pk, err := s.GetOrCreatePeriod(ctx, 3, 2024)
	require.NoError(t, err)

	month := domain.CalculatedKpiFact{BatchID: 9, PeriodKey: pk, Grain: domain.GrainMonth, Scope: domain.ScopeFactory, ScopeID: 1, MetricCode: "margin", Value: f(60)}
	quarter := domain.CalculatedKpiFact{BatchID: 9, PeriodKey: pk, Grain: domain.GrainQuarter, Scope: domain.ScopeFactory, ScopeID: 1, MetricCode: "margin", Value: f(60)}
	other := domain.CalculatedKpiFact{BatchID: 10, PeriodKey: pk, Grain: domain.GrainMonth, Scope: domain.ScopeFactory, ScopeID: 1, MetricCode: "margin"}

	require.NoError(t, s.ReplaceCalculated(ctx, 9, []domain.CalculatedKpiFact{month, quarter}))
	require.NoError(t, s.ReplaceCalculated(ctx, 10, []domain.CalculatedKpiFact{other}))

	got, err := s.ListCalculated(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Duplicate natural keys abort the swap and keep the previous rows.
	assert.Error(t, s.ReplaceCalculated(ctx, 9, []domain.CalculatedKpiFact{month, month}))
	got, err = s.ListCalculated(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, s.ReplaceCalculated(ctx, 9, nil))
	got, err = s.ListCalculated(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, got)

	kept, err := s.ListCalculated(ctx, 10)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Nil(t, kept[0].Value)

	assert.Error(t, s.ReplaceCalculated(ctx, 11, []domain.CalculatedKpiFact{other}))
}
