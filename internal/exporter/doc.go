// Package exporter writes batch results for offline review.
//
// Workbook exports carry two sheets: "dq_issues" with every data-quality
// issue of the batch and "kpi_results" with its calculated KPI rows. CSV
// exports carry the DQ issues only. Exports are written to any io.Writer,
// or to a file under the configured exports directory.
package exporter
