package kpi

import (
	"log/slog"

	"kpiwarehouse/pkg/contracts/domain"
)

// resolve computes every metric whose inputs become available, in passes
// over the definitions in configuration order. Each pass tries all
// unresolved metrics; resolution stops after len(defs) passes or the first
// pass without progress. Metrics still unresolved are left out of the
// result.
func (e *Engine) resolve(defs []domain.MetricDefinition, base Context) map[string]*float64 {
	ctx := base.clone()
	computed := make(map[string]*float64, len(defs))

	passes := len(defs)
	if passes < 1 {
		passes = 1
	}

	for pass := 0; pass < passes; pass++ {
		progress := false
		for _, def := range defs {
			if _, done := computed[def.MetricCode]; done {
				continue
			}
			value, ready := e.evaluator.Evaluate(def, ctx)
			if !ready {
				continue
			}
			computed[def.MetricCode] = value
			ctx[def.MetricCode] = value
			progress = true
		}
		if !progress {
			break
		}
	}

	// TODO: surface unresolved metrics as DQ issues once the issue log
	// accepts KPI-level entries.
	if len(computed) < len(defs) {
		for _, def := range defs {
			if _, done := computed[def.MetricCode]; !done {
				e.logger.Debug("Metric dropped with unresolved inputs",
					slog.String("metric_code", def.MetricCode))
			}
		}
	}
	return computed
}
