package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"kpiwarehouse/internal/config"
	"kpiwarehouse/pkg/contracts/domain"
)

type memorySource struct {
	issues  []domain.DQIssue
	results []domain.CalculatedKpiFact
}

func (m *memorySource) ListIssues(_ context.Context, _ int64, _ domain.IssueType) ([]domain.DQIssue, error) {
	return m.issues, nil
}

func (m *memorySource) ListCalculated(_ context.Context, _ int64) ([]domain.CalculatedKpiFact, error) {
	return m.results, nil
}

func fixture() *memorySource {
	row := 2
	value := 210.0
	return &memorySource{
		issues: []domain.DQIssue{
			{
				BatchID:   1,
				RowNumber: &row,
				IssueType: domain.IssueDuplicateKey,
				Message:   "duplicate factory+period combination",
				Context:   map[string]interface{}{"month": 1, "factory_code": "F1", "year": 2024},
				CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			},
			{BatchID: 1, IssueType: domain.IssueInvalidJSON, Message: "staging row contains invalid JSON"},
		},
		results: []domain.CalculatedKpiFact{
			{BatchID: 1, PeriodKey: 3, Grain: domain.GrainQuarter, Scope: domain.ScopeFactory, ScopeID: 1, MetricCode: "margin", Value: &value},
			{BatchID: 1, PeriodKey: 6, Grain: domain.GrainQuarter, Scope: domain.ScopeFactory, ScopeID: 1, MetricCode: "margin"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatXLSX, false},
		{"XLSX", FormatXLSX, false},
		{" csv ", FormatCSV, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	assert.Equal(t, "batch_4_dq_issues.csv", FormatCSV.FileName(4))
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(fixture(), nil, nil).Export(context.Background(), &buf, 1, FormatCSV))

	data := buf.Bytes()
	require.True(t, bytes.HasPrefix(data, utf8BOM))

	records, err := csv.NewReader(bytes.NewReader(data[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, IssueHeaders, records[0])
	assert.Equal(t, []string{
		"2", "duplicate_key", "duplicate factory+period combination",
		`{"factory_code":"F1","month":1,"year":2024}`, "2024-05-01T10:00:00Z",
	}, records[1])
	assert.Equal(t, []string{"", "invalid_json", "staging row contains invalid JSON", "", ""}, records[2])
}

func TestExportWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(fixture(), nil, nil).Export(context.Background(), &buf, 1, FormatXLSX))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{IssuesSheet, KPIResultsSheet}, f.GetSheetList())

	issues, err := f.GetRows(IssuesSheet)
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Equal(t, IssueHeaders, issues[0])
	assert.Equal(t, "2", issues[1][0])
	assert.Equal(t, "duplicate_key", issues[1][1])

	results, err := f.GetRows(KPIResultsSheet)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, KPIHeaders, results[0])
	assert.Equal(t, []string{"factory", "1", "margin", "quarter", "3", "210"}, results[1])
	assert.Equal(t, []string{"factory", "1", "margin", "quarter", "6"}, results[2])
}

func TestExportFile(t *testing.T) {
	dir := t.TempDir()
	paths := &config.Paths{ExportsDir: filepath.Join(dir, "exports")}
	exp := New(fixture(), paths, nil)
	ctx := context.Background()

	written, err := exp.ExportFile(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "exports", "batch_1_dq_issues.xlsx"), written)
	assert.FileExists(t, written)

	abs := filepath.Join(dir, "out", "issues.csv")
	written, err = exp.ExportFile(ctx, 1, abs)
	require.NoError(t, err)
	assert.Equal(t, abs, written)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Contains(t, string(data), "duplicate_key")

	_, err = exp.ExportFile(ctx, 1, "issues.pdf")
	assert.Error(t, err)
}
