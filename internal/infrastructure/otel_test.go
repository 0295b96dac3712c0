package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestBusinessMetricsRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	metrics, err := CreateBusinessMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	RecordBatchRun(ctx, metrics, "operations", "completed", 2*time.Second, 7)
	RecordBatchRun(ctx, metrics, "kpi", "failed", time.Second, 0)
	RecordDQIssue(ctx, metrics, "operations", "anomaly")
	RecordDQIssue(ctx, metrics, "operations", "duplicate_key")
	RecordKPICalculation(ctx, metrics, true, time.Second, 12)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, data["batch_runs_total"]))
	assert.Equal(t, int64(7), sumOf(t, data["batch_rows_accepted_total"]))
	assert.Equal(t, int64(2), sumOf(t, data["dq_issues_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["kpi_calculations_total"]))
	assert.Equal(t, int64(12), sumOf(t, data["kpi_results_written_total"]))
}

func TestRecordHelpersTolerateNilMetrics(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordBatchRun(ctx, nil, "kpi", "completed", time.Second, 1)
		RecordDQIssue(ctx, nil, "kpi", "anomaly")
		RecordKPICalculation(ctx, nil, false, time.Second, 0)
	})
}

func TestInitializeOTelWithoutExporters(t *testing.T) {
	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:    "test",
		ServiceVersion: "0.0.0",
		Environment:    "test",
		TraceExporter:  "none",
	}, nil)
	require.NoError(t, err)

	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.Nil(t, providers.PrometheusHTTP)

	_, err = CreateBusinessMetrics(providers.Meter)
	assert.NoError(t, err)
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitializeOTelRejectsUnknownExporter(t *testing.T) {
	_, err := InitializeOTel(&OTelConfig{ServiceName: "test", TraceExporter: "zipkin"}, nil)
	assert.Error(t, err)
}
