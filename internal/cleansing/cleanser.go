package cleansing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/internal/quality"
	"kpiwarehouse/internal/warehouse"
	"kpiwarehouse/pkg/contracts/domain"
)

const invalidJSONMessage = "staging row contains invalid JSON"

// RowCommitter receives each row's issues once its decision is made.
type RowCommitter interface {
	Commit(ctx context.Context, row *quality.Row) error
}

// Cleanser validates staged rows against the anomaly gate and alias maps.
type Cleanser struct {
	thresholds Thresholds
	logger     *slog.Logger
}

// NewCleanser creates a cleanser using the given anomaly thresholds.
func NewCleanser(thresholds Thresholds, logger *slog.Logger) *Cleanser {
	return &Cleanser{
		thresholds: thresholds,
		logger:     infrastructure.WithComponent(logger, "cleanser"),
	}
}

type operationsKey struct {
	factory     string
	year, month int
}

type kpiKey struct {
	employee    string
	year, month int
	metric      string
}

type namedValue struct {
	name  string
	value float64
}

// CleanseOperations validates factory operations rows and returns the
// accepted records in read order.
func (c *Cleanser) CleanseOperations(ctx context.Context, rows []domain.StagingRow, aliases domain.AliasMaps, rec RowCommitter) ([]domain.FactOperationRecord, error) {
	seen := make(map[operationsKey]struct{})
	var accepted []domain.FactOperationRecord

	for _, stg := range rows {
		row := quality.NewRow(stg.RowNumber)
		record, ok := c.operationsRow(stg, aliases, seen, row)
		if err := rec.Commit(ctx, row); err != nil {
			return nil, err
		}
		if ok {
			accepted = append(accepted, record)
		}
	}

	c.logger.InfoContext(ctx, "Cleansed operations rows",
		slog.Int("rows", len(rows)),
		slog.Int("accepted", len(accepted)))
	return accepted, nil
}

func (c *Cleanser) operationsRow(stg domain.StagingRow, aliases domain.AliasMaps, seen map[operationsKey]struct{}, row *quality.Row) (domain.FactOperationRecord, bool) {
	var record domain.FactOperationRecord

	payload, err := decodePayload(stg.Payload)
	if err != nil {
		row.Add(domain.IssueInvalidJSON, invalidJSONMessage, nil)
		return record, false
	}

	if !requireFields(payload, row, "factory_code", "date") {
		return record, false
	}

	year, month, err := parsePeriod(payload["date"])
	if err != nil {
		row.Add(domain.IssueInvalidDate, err.Error(), map[string]interface{}{"value": textOf(payload["date"])})
		return record, false
	}

	code := warehouse.NormalizeFactoryCode(textOf(payload["factory_code"]), aliases.Factory)
	if code == "" {
		row.Add(domain.IssueMissingValue, "factory_code is required", map[string]interface{}{"field": "factory_code"})
		return record, false
	}

	// The key is claimed before metrics are checked, so a first occurrence
	// rejected later still shadows its duplicates.
	key := operationsKey{factory: code, year: year, month: month}
	if _, dup := seen[key]; dup {
		row.Add(domain.IssueDuplicateKey, "duplicate factory+period combination", map[string]interface{}{
			"factory_code": code, "year": year, "month": month,
		})
		return record, false
	}
	seen[key] = struct{}{}

	var metrics []namedValue
	for _, field := range domain.OperationMetricFields {
		v, present := payload[field]
		if !present || v == nil {
			continue
		}
		n, ok := parseNumber(v)
		if !ok {
			row.Add(domain.IssueInvalidValue, field+" must be numeric", map[string]interface{}{
				"field": field, "value": textOf(v),
			})
			continue
		}
		metrics = append(metrics, namedValue{name: field, value: n})
	}

	if len(metrics) == 0 && !isMissing(payload, "indicator") && payload["value"] != nil {
		indicator := strings.ToLower(strings.TrimSpace(textOf(payload["indicator"])))
		n, ok := parseNumber(payload["value"])
		if !ok {
			row.Add(domain.IssueInvalidValue, "value must be numeric", map[string]interface{}{
				"field": "value", "value": textOf(payload["value"]),
			})
			return record, false
		}
		metrics = append(metrics, namedValue{name: indicator, value: n})
	}

	if len(metrics) == 0 {
		row.Add(domain.IssueMissingValue, "no metrics to load", nil)
		return record, false
	}

	if c.flagAnomalies(metrics, row) {
		return record, false
	}

	record = domain.FactOperationRecord{FactoryCode: code, Year: year, Month: month}
	for _, m := range metrics {
		record.SetMetric(m.name, m.value)
	}
	return record, true
}

// CleanseKPI validates employee KPI rows and returns the accepted records
// in read order.
func (c *Cleanser) CleanseKPI(ctx context.Context, rows []domain.StagingRow, aliases domain.AliasMaps, rec RowCommitter) ([]domain.FactKpiRecord, error) {
	seen := make(map[kpiKey]struct{})
	var accepted []domain.FactKpiRecord

	for _, stg := range rows {
		row := quality.NewRow(stg.RowNumber)
		record, ok := c.kpiRow(stg, aliases, seen, row)
		if err := rec.Commit(ctx, row); err != nil {
			return nil, err
		}
		if ok {
			accepted = append(accepted, record)
		}
	}

	c.logger.InfoContext(ctx, "Cleansed KPI rows",
		slog.Int("rows", len(rows)),
		slog.Int("accepted", len(accepted)))
	return accepted, nil
}

func (c *Cleanser) kpiRow(stg domain.StagingRow, aliases domain.AliasMaps, seen map[kpiKey]struct{}, row *quality.Row) (domain.FactKpiRecord, bool) {
	var record domain.FactKpiRecord

	payload, err := decodePayload(stg.Payload)
	if err != nil {
		row.Add(domain.IssueInvalidJSON, invalidJSONMessage, nil)
		return record, false
	}

	if !requireFields(payload, row, "employee_id", "indicator", "value", "date") {
		return record, false
	}

	year, month, err := parsePeriod(payload["date"])
	if err != nil {
		row.Add(domain.IssueInvalidDate, err.Error(), map[string]interface{}{"value": textOf(payload["date"])})
		return record, false
	}

	metricCode := strings.TrimSpace(textOf(payload["indicator"]))
	employeeID := warehouse.NormalizeEmployeeID(textOf(payload["employee_id"]), aliases.Employee)
	if employeeID == "" {
		row.Add(domain.IssueMissingValue, "employee_id is required", map[string]interface{}{"field": "employee_id"})
		return record, false
	}

	key := kpiKey{employee: employeeID, year: year, month: month, metric: strings.ToLower(metricCode)}
	if _, dup := seen[key]; dup {
		row.Add(domain.IssueDuplicateKey, "duplicate employee+period+metric combination", map[string]interface{}{
			"employee_id": employeeID, "year": year, "month": month, "metric": metricCode,
		})
		return record, false
	}
	seen[key] = struct{}{}

	value, ok := parseNumber(payload["value"])
	if !ok {
		row.Add(domain.IssueInvalidValue, "value must be numeric", map[string]interface{}{
			"field": "value", "value": textOf(payload["value"]),
		})
		return record, false
	}

	if c.flagAnomalies([]namedValue{{name: metricCode, value: value}}, row) {
		return record, false
	}

	record = domain.FactKpiRecord{
		EmployeeID: employeeID,
		MetricCode: metricCode,
		Value:      value,
		Year:       year,
		Month:      month,
	}
	if raw, present := payload["factory_code"]; present && raw != nil {
		if code := warehouse.NormalizeFactoryCode(textOf(raw), aliases.Factory); code != "" {
			record.FactoryCode = &code
		}
	}
	if raw, present := payload["target"]; present && raw != nil {
		if target, ok := parseNumber(raw); ok {
			record.Target = &target
		}
	}
	return record, true
}

// requireFields adds one missing_value issue per missing field and reports
// whether all were present.
func requireFields(payload map[string]interface{}, row *quality.Row, fields ...string) bool {
	ok := true
	for _, field := range fields {
		if isMissing(payload, field) {
			row.Add(domain.IssueMissingValue, field+" is required", map[string]interface{}{"field": field})
			ok = false
		}
	}
	return ok
}

// flagAnomalies adds one anomaly issue per metric over its threshold and
// reports whether any was found. Fixed metrics keep their order; other
// names are checked alphabetically after them.
func (c *Cleanser) flagAnomalies(metrics []namedValue, row *quality.Row) bool {
	ordered := orderMetrics(metrics)
	found := false
	for _, m := range ordered {
		if limit, over := c.thresholds.Exceeds(m.name, m.value); over {
			row.Add(domain.IssueAnomaly, fmt.Sprintf("%s exceeds threshold %g", m.name, limit), map[string]interface{}{
				"metric": m.name, "value": m.value, "threshold": limit,
			})
			found = true
		}
	}
	return found
}

func orderMetrics(metrics []namedValue) []namedValue {
	rank := make(map[string]int, len(domain.OperationMetricFields))
	for i, f := range domain.OperationMetricFields {
		rank[f] = i
	}
	out := append([]namedValue(nil), metrics...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iFixed := rank[out[i].name]
		rj, jFixed := rank[out[j].name]
		switch {
		case iFixed && jFixed:
			return ri < rj
		case iFixed != jFixed:
			return iFixed
		default:
			return out[i].name < out[j].name
		}
	})
	return out
}
