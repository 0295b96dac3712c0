package kpi

import (
	"context"
	"fmt"

	"kpiwarehouse/pkg/contracts/domain"
)

// Point is one monthly input to an aggregate.
type Point struct {
	Month int
	Value *float64
}

// Aggregate combines monthly points. Null points are ignored; the result is
// nil when no point has a value. Unknown aggregations sum.
func Aggregate(agg domain.Aggregation, points []Point) *float64 {
	var (
		values []float64
		latest *Point
	)
	for i := range points {
		p := &points[i]
		if p.Value == nil {
			continue
		}
		values = append(values, *p.Value)
		if latest == nil || p.Month > latest.Month {
			latest = p
		}
	}
	if len(values) == 0 {
		return nil
	}

	var out float64
	switch agg.Normalize() {
	case domain.AggregationAvg, domain.AggregationMean:
		for _, v := range values {
			out += v
		}
		out /= float64(len(values))
	case domain.AggregationMax:
		out = values[0]
		for _, v := range values[1:] {
			if v > out {
				out = v
			}
		}
	case domain.AggregationMin:
		out = values[0]
		for _, v := range values[1:] {
			if v < out {
				out = v
			}
		}
	case domain.AggregationLatest:
		out = *latest.Value
	default:
		for _, v := range values {
			out += v
		}
	}
	return &out
}

// PeriodResolver returns the period key of a (month, year), creating the
// period when missing.
type PeriodResolver interface {
	GetOrCreatePeriod(ctx context.Context, month, year int) (int64, error)
}

type rollupKey struct {
	scope   domain.Scope
	scopeID int64
	metric  string
	year    int
	quarter int
}

type rollupGroup struct {
	key     rollupKey
	values  []Point
	targets []Point
}

// rollup aggregates monthly rows into the given grain. Quarter results are
// stored under month quarter*3 of their year, year results under month 12.
func rollup(ctx context.Context, periods PeriodResolver, monthly []domain.CalculatedKpiFact, defs map[string]domain.MetricDefinition, index map[int64]domain.Period, grain domain.Grain) ([]domain.CalculatedKpiFact, error) {
	groups := make(map[rollupKey]*rollupGroup)
	var order []rollupKey

	for _, row := range monthly {
		if row.Grain != domain.GrainMonth {
			continue
		}
		period, ok := index[row.PeriodKey]
		if !ok {
			continue
		}
		key := rollupKey{scope: row.Scope, scopeID: row.ScopeID, metric: row.MetricCode, year: period.Year}
		if grain == domain.GrainQuarter {
			key.quarter = period.Quarter
		}
		g, ok := groups[key]
		if !ok {
			g = &rollupGroup{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.values = append(g.values, Point{Month: period.Month, Value: row.Value})
		g.targets = append(g.targets, Point{Month: period.Month, Value: row.Target})
	}

	out := make([]domain.CalculatedKpiFact, 0, len(order))
	for _, key := range order {
		def, ok := defs[key.metric]
		if !ok {
			continue
		}

		month := 12
		if grain == domain.GrainQuarter {
			month = key.quarter * 3
		}
		periodKey, err := periods.GetOrCreatePeriod(ctx, month, key.year)
		if err != nil {
			return nil, fmt.Errorf("resolve %s period %d-%02d: %w", grain, key.year, month, err)
		}

		g := groups[key]
		out = append(out, domain.CalculatedKpiFact{
			PeriodKey:  periodKey,
			Grain:      grain,
			Scope:      key.scope,
			ScopeID:    key.scopeID,
			MetricCode: key.metric,
			Value:      Aggregate(def.Aggregation, g.values),
			Target:     Aggregate(def.Aggregation, g.targets),
			Weight:     def.Weight,
		})
	}
	return out, nil
}
