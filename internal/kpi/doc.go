// Package kpi calculates formula-driven KPIs from the warehouse facts.
//
// Metric definitions name a scope (factory or employee), an optional
// formula over base facts and other metric codes, and an aggregation used
// to roll monthly results up into quarters and years. A calculation run
// replaces every calculated row of its batch, so re-running a batch yields
// the same rows.
//
// Formulas are evaluated by the restricted expr package. Evaluation faults
// never abort a run; the affected metric is stored with a null value.
package kpi
