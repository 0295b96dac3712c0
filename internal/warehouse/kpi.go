package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"kpiwarehouse/pkg/contracts/domain"
)

// ListMetricDefinitions returns metric definitions in configuration order.
func (s *Store) ListMetricDefinitions(ctx context.Context) ([]domain.MetricDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric_code, scope, formula, aggregation, weight, target_source
		FROM kpi_metrics ORDER BY position, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list metric definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.MetricDefinition
	for rows.Next() {
		var (
			def                                domain.MetricDefinition
			scope                              string
			formula, aggregation, targetSource sql.NullString
			weight                             sql.NullFloat64
		)
		if err := rows.Scan(&def.MetricCode, &scope, &formula, &aggregation, &weight, &targetSource); err != nil {
			return nil, fmt.Errorf("scan metric definition: %w", err)
		}
		def.Scope = domain.Scope(scope)
		def.Aggregation = domain.Aggregation(aggregation.String).Normalize()
		def.Weight = nullFloat(weight)
		if formula.Valid {
			f := formula.String
			def.Formula = &f
		}
		if targetSource.Valid {
			ts := targetSource.String
			def.TargetSource = &ts
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// UpsertMetricDefinitions stores definitions, keeping the slice order as the
// configuration order.
func (s *Store) UpsertMetricDefinitions(ctx context.Context, defs []domain.MetricDefinition) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var base int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM kpi_metrics`).Scan(&base); err != nil {
			return err
		}
		for i, def := range defs {
			var formula, targetSource any
			if def.Formula != nil {
				formula = *def.Formula
			}
			if def.TargetSource != nil {
				targetSource = *def.TargetSource
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO kpi_metrics (metric_code, scope, formula, aggregation, weight, target_source, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(metric_code) DO UPDATE SET
					scope = excluded.scope,
					formula = excluded.formula,
					aggregation = excluded.aggregation,
					weight = excluded.weight,
					target_source = excluded.target_source`,
				def.MetricCode, string(def.Scope), formula, string(def.Aggregation.Normalize()),
				floatArg(def.Weight), targetSource, base+i+1); err != nil {
				return fmt.Errorf("upsert metric %s: %w", def.MetricCode, err)
			}
		}
		return nil
	})
}

// FactoryMonthlyFacts sums operations facts per (factory, period). Extra
// metrics stored as JSON are summed alongside the fixed columns.
func (s *Store) FactoryMonthlyFacts(ctx context.Context, periodKeys []int64) ([]domain.MonthlyFacts, error) {
	filter, args := periodFilter("period_key", periodKeys)

	rows, err := s.db.QueryContext(ctx, `
		SELECT factory_key, period_key,
		       SUM(revenue), SUM(cost), SUM(output_qty), SUM(downtime_hours)
		FROM fact_operations`+filter+`
		GROUP BY factory_key, period_key`, args...)
	if err != nil {
		return nil, fmt.Errorf("query factory facts: %w", err)
	}

	grouped := make(map[[2]int64]*domain.MonthlyFacts)
	for rows.Next() {
		var (
			scopeID, periodKey              int64
			revenue, cost, output, downtime sql.NullFloat64
		)
		if err := rows.Scan(&scopeID, &periodKey, &revenue, &cost, &output, &downtime); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan factory facts: %w", err)
		}
		grouped[[2]int64{scopeID, periodKey}] = &domain.MonthlyFacts{
			ScopeID:   scopeID,
			PeriodKey: periodKey,
			Values: map[string]*float64{
				domain.FieldRevenue:       nullFloat(revenue),
				domain.FieldCost:          nullFloat(cost),
				domain.FieldOutputQty:     nullFloat(output),
				domain.FieldDowntimeHours: nullFloat(downtime),
			},
		}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	extraFilter, extraArgs := periodFilter("f.period_key", periodKeys)
	extra, err := s.db.QueryContext(ctx, `
		SELECT f.factory_key, f.period_key, j.key, SUM(j.value)
		FROM fact_operations f, json_each(f.extra_metrics) j`+extraFilter+`
		GROUP BY f.factory_key, f.period_key, j.key`, extraArgs...)
	if err != nil {
		return nil, fmt.Errorf("query factory extra metrics: %w", err)
	}
	defer extra.Close()

	for extra.Next() {
		var (
			scopeID, periodKey int64
			name               string
			value              sql.NullFloat64
		)
		if err := extra.Scan(&scopeID, &periodKey, &name, &value); err != nil {
			return nil, fmt.Errorf("scan factory extra metric: %w", err)
		}
		if facts, ok := grouped[[2]int64{scopeID, periodKey}]; ok {
			facts.Values[name] = nullFloat(value)
		}
	}
	if err := extra.Err(); err != nil {
		return nil, err
	}

	return sortedFacts(grouped), nil
}

// EmployeeMonthlyFacts sums KPI fact values and averages targets per
// (employee, period, metric). Metric names are lower-cased.
func (s *Store) EmployeeMonthlyFacts(ctx context.Context, periodKeys []int64) ([]domain.MonthlyFacts, error) {
	filter, args := periodFilter("period_key", periodKeys)

	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_key, period_key, metric_key, SUM(value), AVG(target)
		FROM fact_kpi`+filter+`
		GROUP BY employee_key, period_key, metric_key`, args...)
	if err != nil {
		return nil, fmt.Errorf("query employee facts: %w", err)
	}
	defer rows.Close()

	grouped := make(map[[2]int64]*domain.MonthlyFacts)
	for rows.Next() {
		var (
			scopeID, periodKey int64
			metric             string
			value, target      sql.NullFloat64
		)
		if err := rows.Scan(&scopeID, &periodKey, &metric, &value, &target); err != nil {
			return nil, fmt.Errorf("scan employee facts: %w", err)
		}
		key := [2]int64{scopeID, periodKey}
		facts, ok := grouped[key]
		if !ok {
			facts = &domain.MonthlyFacts{
				ScopeID:   scopeID,
				PeriodKey: periodKey,
				Values:    map[string]*float64{},
				Targets:   map[string]*float64{},
			}
			grouped[key] = facts
		}
		facts.Values[metric] = nullFloat(value)
		facts.Targets[metric] = nullFloat(target)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sortedFacts(grouped), nil
}

// ReplaceCalculated swaps the calculated KPI rows of a batch for rows in one
// transaction. When the write fails the previous rows are kept.
func (s *Store) ReplaceCalculated(ctx context.Context, batchID int64, rows []domain.CalculatedKpiFact) error {
	var cleared int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM fact_kpi_calc WHERE batch_id = ?`, batchID)
		if err != nil {
			return fmt.Errorf("delete calculated kpis for batch %d: %w", batchID, err)
		}
		cleared, _ = res.RowsAffected()
		if len(rows) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fact_kpi_calc
				(batch_id, period_key, grain, scope, scope_id, metric_code, value, target, weight, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare fact_kpi_calc insert: %w", err)
		}
		defer stmt.Close()

		ts := now()
		for _, r := range rows {
			if r.BatchID != batchID {
				return fmt.Errorf("calculated %s belongs to batch %d, not %d", r.MetricCode, r.BatchID, batchID)
			}
			if _, err := stmt.ExecContext(ctx, r.BatchID, r.PeriodKey, string(r.Grain), string(r.Scope),
				r.ScopeID, r.MetricCode, floatArg(r.Value), floatArg(r.Target), floatArg(r.Weight), ts); err != nil {
				return fmt.Errorf("insert calculated %s: %w", r.MetricCode, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "Replaced calculated KPIs",
		slog.Int64("batch_id", batchID),
		slog.Int64("cleared", cleared),
		slog.Int("written", len(rows)))
	return nil
}

// ListCalculated returns the calculated KPI rows of a batch.
func (s *Store) ListCalculated(ctx context.Context, batchID int64) ([]domain.CalculatedKpiFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, period_key, grain, scope, scope_id, metric_code, value, target, weight
		FROM fact_kpi_calc WHERE batch_id = ?
		ORDER BY scope, scope_id, metric_code, grain, period_key`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list calculated kpis: %w", err)
	}
	defer rows.Close()

	out := []domain.CalculatedKpiFact{}
	for rows.Next() {
		var (
			r                     domain.CalculatedKpiFact
			grain, scope          string
			value, target, weight sql.NullFloat64
		)
		if err := rows.Scan(&r.BatchID, &r.PeriodKey, &grain, &scope, &r.ScopeID, &r.MetricCode,
			&value, &target, &weight); err != nil {
			return nil, fmt.Errorf("scan calculated kpi: %w", err)
		}
		r.Grain = domain.Grain(grain)
		r.Scope = domain.Scope(scope)
		r.Value = nullFloat(value)
		r.Target = nullFloat(target)
		r.Weight = nullFloat(weight)
		out = append(out, r)
	}
	return out, rows.Err()
}

func periodFilter(column string, periodKeys []int64) (string, []any) {
	in, args := inClause(periodKeys)
	if in == "" {
		return "", nil
	}
	return " WHERE " + column + " IN " + in, args
}

func sortedFacts(grouped map[[2]int64]*domain.MonthlyFacts) []domain.MonthlyFacts {
	out := make([]domain.MonthlyFacts, 0, len(grouped))
	for _, f := range grouped {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScopeID != out[j].ScopeID {
			return out[i].ScopeID < out[j].ScopeID
		}
		return out[i].PeriodKey < out[j].PeriodKey
	})
	return out
}
