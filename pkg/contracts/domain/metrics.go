package domain

import (
	"strings"
)

// Scope is the dimension a KPI metric is calculated for.
type Scope string

const (
	ScopeFactory  Scope = "factory"
	ScopeEmployee Scope = "employee"
)

// Aggregation names how monthly values roll up into quarters and years.
type Aggregation string

const (
	AggregationSum    Aggregation = "sum"
	AggregationAvg    Aggregation = "avg"
	AggregationMean   Aggregation = "mean"
	AggregationMax    Aggregation = "max"
	AggregationMin    Aggregation = "min"
	AggregationLatest Aggregation = "latest"
)

// Normalize lower-cases the aggregation and applies the sum default.
func (a Aggregation) Normalize() Aggregation {
	n := Aggregation(strings.ToLower(strings.TrimSpace(string(a))))
	if n == "" {
		return AggregationSum
	}
	return n
}

// TargetSourceFactKpi pulls monthly targets from the employee KPI facts.
const TargetSourceFactKpi = "fact_kpi"

// MetricDefinition is formula-driven KPI configuration.
type MetricDefinition struct {
	MetricCode   string      `json:"metric_code" yaml:"metric_code" db:"metric_code" validate:"required"`
	Scope        Scope       `json:"scope" yaml:"scope" db:"scope" validate:"required,oneof=factory employee"`
	Formula      *string     `json:"formula,omitempty" yaml:"formula" db:"formula"`
	Aggregation  Aggregation `json:"aggregation" yaml:"aggregation" db:"aggregation" validate:"omitempty,oneof=sum avg mean max min latest"`
	Weight       *float64    `json:"weight,omitempty" yaml:"weight" db:"weight"`
	TargetSource *string     `json:"target_source,omitempty" yaml:"target_source" db:"target_source"`
}

// HasFormula reports whether the metric is computed from a non-blank formula.
func (m MetricDefinition) HasFormula() bool {
	return m.Formula != nil && strings.TrimSpace(*m.Formula) != ""
}

// Grain is the period granularity of a calculated KPI row.
type Grain string

const (
	GrainMonth   Grain = "month"
	GrainQuarter Grain = "quarter"
	GrainYear    Grain = "year"
)

// Period is a row of the period dimension.
type Period struct {
	Key     int64 `json:"period_key" db:"period_key"`
	Month   int   `json:"month" db:"month"`
	Quarter int   `json:"quarter" db:"quarter"`
	Year    int   `json:"year" db:"year"`
}

// QuarterOf returns ceil(month/3).
func QuarterOf(month int) int {
	return (month + 2) / 3
}

// CalculatedKpiFact is one calculated metric value for a scope member and period.
type CalculatedKpiFact struct {
	BatchID    int64    `json:"batch_id" db:"batch_id"`
	PeriodKey  int64    `json:"period_key" db:"period_key"`
	Grain      Grain    `json:"grain" db:"grain"`
	Scope      Scope    `json:"scope" db:"scope"`
	ScopeID    int64    `json:"scope_id" db:"scope_id"`
	MetricCode string   `json:"metric_code" db:"metric_code"`
	Value      *float64 `json:"value" db:"value"`
	Target     *float64 `json:"target" db:"target"`
	Weight     *float64 `json:"weight" db:"weight"`
}

// MonthlyFacts holds the base fact values of one scope member for one
// month. A nil value is a fact that exists but aggregated to NULL.
type MonthlyFacts struct {
	ScopeID   int64               `json:"scope_id"`
	PeriodKey int64               `json:"period_key"`
	Values    map[string]*float64 `json:"values"`
	Targets   map[string]*float64 `json:"targets,omitempty"`
}
