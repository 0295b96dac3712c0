package warehouse

import (
	"context"
	"fmt"
	"strings"

	"kpiwarehouse/pkg/contracts/domain"
)

// LoadAliasMaps reads the factory and employee alias tables.
func (s *Store) LoadAliasMaps(ctx context.Context) (domain.AliasMaps, error) {
	maps := domain.AliasMaps{
		Factory:  map[string]string{},
		Employee: map[string]string{},
	}
	if err := s.readAliases(ctx, `SELECT alias, factory_code FROM factory_code_alias`, maps.Factory); err != nil {
		return maps, fmt.Errorf("load factory aliases: %w", err)
	}
	if err := s.readAliases(ctx, `SELECT alias, employee_id FROM employee_id_alias`, maps.Employee); err != nil {
		return maps, fmt.Errorf("load employee aliases: %w", err)
	}
	return maps, nil
}

func (s *Store) readAliases(ctx context.Context, query string, dst map[string]string) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var alias, canonical string
		if err := rows.Scan(&alias, &canonical); err != nil {
			return err
		}
		dst[alias] = canonical
	}
	return rows.Err()
}

// PutFactoryAlias maps an alias to a canonical factory code.
func (s *Store) PutFactoryAlias(ctx context.Context, alias, code string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO factory_code_alias (alias, factory_code) VALUES (?, ?)
		ON CONFLICT(alias) DO UPDATE SET factory_code = excluded.factory_code`,
		strings.TrimSpace(alias), strings.TrimSpace(code))
	return err
}

// PutEmployeeAlias maps an alias to a canonical employee id.
func (s *Store) PutEmployeeAlias(ctx context.Context, alias, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employee_id_alias (alias, employee_id) VALUES (?, ?)
		ON CONFLICT(alias) DO UPDATE SET employee_id = excluded.employee_id`,
		strings.TrimSpace(alias), strings.TrimSpace(id))
	return err
}

// GetOrCreatePeriod returns the period key of (month, year), creating the
// row on first use.
func (s *Store) GetOrCreatePeriod(ctx context.Context, month, year int) (int64, error) {
	return getOrCreatePeriod(ctx, s.db, month, year)
}

func getOrCreatePeriod(ctx context.Context, q querier, month, year int) (int64, error) {
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("invalid month %d", month)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO dim_period (month, quarter, year) VALUES (?, ?, ?) ON CONFLICT(year, month) DO NOTHING`,
		month, domain.QuarterOf(month), year); err != nil {
		return 0, fmt.Errorf("create period %d-%02d: %w", year, month, err)
	}

	var key int64
	if err := q.QueryRowContext(ctx,
		`SELECT period_key FROM dim_period WHERE year = ? AND month = ?`, year, month).Scan(&key); err != nil {
		return 0, fmt.Errorf("lookup period %d-%02d: %w", year, month, err)
	}
	return key, nil
}

// PeriodIndex returns every period keyed by period key.
func (s *Store) PeriodIndex(ctx context.Context) (map[int64]domain.Period, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT period_key, month, quarter, year FROM dim_period`)
	if err != nil {
		return nil, fmt.Errorf("load period index: %w", err)
	}
	defer rows.Close()

	index := make(map[int64]domain.Period)
	for rows.Next() {
		var p domain.Period
		if err := rows.Scan(&p.Key, &p.Month, &p.Quarter, &p.Year); err != nil {
			return nil, err
		}
		index[p.Key] = p
	}
	return index, rows.Err()
}

func factoryKey(ctx context.Context, q querier, code string) (int64, error) {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO dim_factory (factory_code) VALUES (?) ON CONFLICT(factory_code) DO NOTHING`, code); err != nil {
		return 0, fmt.Errorf("create factory %s: %w", code, err)
	}
	var key int64
	err := q.QueryRowContext(ctx, `SELECT factory_key FROM dim_factory WHERE factory_code = ?`, code).Scan(&key)
	return key, err
}

func employeeKey(ctx context.Context, q querier, id string, factory *int64) (int64, error) {
	var factoryArg any
	if factory != nil {
		factoryArg = *factory
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO dim_employee (employee_id, factory_key) VALUES (?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET factory_key = COALESCE(excluded.factory_key, dim_employee.factory_key)`,
		id, factoryArg); err != nil {
		return 0, fmt.Errorf("create employee %s: %w", id, err)
	}
	var key int64
	err := q.QueryRowContext(ctx, `SELECT employee_key FROM dim_employee WHERE employee_id = ?`, id).Scan(&key)
	return key, err
}
