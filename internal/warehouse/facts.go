package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"kpiwarehouse/pkg/contracts/domain"
)

// LoadFactOperations upserts cleansed operations records keyed by
// (factory, period). Reloading the same records is idempotent.
func (s *Store) LoadFactOperations(ctx context.Context, batchID int64, records []domain.FactOperationRecord) error {
	if len(records) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fact_operations
				(factory_key, period_key, revenue, cost, output_qty, downtime_hours, extra_metrics, batch_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(factory_key, period_key) DO UPDATE SET
				revenue = excluded.revenue,
				cost = excluded.cost,
				output_qty = excluded.output_qty,
				downtime_hours = excluded.downtime_hours,
				extra_metrics = excluded.extra_metrics,
				batch_id = excluded.batch_id`)
		if err != nil {
			return fmt.Errorf("prepare fact_operations upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			fk, err := factoryKey(ctx, tx, r.FactoryCode)
			if err != nil {
				return err
			}
			pk, err := getOrCreatePeriod(ctx, tx, r.Month, r.Year)
			if err != nil {
				return err
			}

			var extra any
			if len(r.Extra) > 0 {
				raw, err := json.Marshal(r.Extra)
				if err != nil {
					return fmt.Errorf("encode extra metrics: %w", err)
				}
				extra = string(raw)
			}

			if _, err := stmt.ExecContext(ctx, fk, pk,
				floatArg(r.Revenue), floatArg(r.Cost), floatArg(r.OutputQty), floatArg(r.DowntimeHours),
				extra, batchID); err != nil {
				return fmt.Errorf("upsert operations fact %s %d-%02d: %w", r.FactoryCode, r.Year, r.Month, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Loaded operations facts",
		slog.Int64("batch_id", batchID),
		slog.Int("records", len(records)))
	return nil
}

// LoadFactKpi upserts cleansed KPI records keyed by
// (employee, period, lower(metric code)).
func (s *Store) LoadFactKpi(ctx context.Context, batchID int64, records []domain.FactKpiRecord) error {
	if len(records) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fact_kpi
				(employee_key, factory_key, period_key, metric_code, metric_key, value, target, batch_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(employee_key, period_key, metric_key) DO UPDATE SET
				factory_key = excluded.factory_key,
				metric_code = excluded.metric_code,
				value = excluded.value,
				target = excluded.target,
				batch_id = excluded.batch_id`)
		if err != nil {
			return fmt.Errorf("prepare fact_kpi upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			var fk *int64
			if r.FactoryCode != nil && *r.FactoryCode != "" {
				key, err := factoryKey(ctx, tx, *r.FactoryCode)
				if err != nil {
					return err
				}
				fk = &key
			}
			ek, err := employeeKey(ctx, tx, r.EmployeeID, fk)
			if err != nil {
				return err
			}
			pk, err := getOrCreatePeriod(ctx, tx, r.Month, r.Year)
			if err != nil {
				return err
			}

			var factoryArg any
			if fk != nil {
				factoryArg = *fk
			}
			if _, err := stmt.ExecContext(ctx, ek, factoryArg, pk,
				r.MetricCode, strings.ToLower(r.MetricCode), r.Value, floatArg(r.Target), batchID); err != nil {
				return fmt.Errorf("upsert kpi fact %s %s: %w", r.EmployeeID, r.MetricCode, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Loaded KPI facts",
		slog.Int64("batch_id", batchID),
		slog.Int("records", len(records)))
	return nil
}
