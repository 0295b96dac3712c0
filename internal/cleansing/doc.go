// Package cleansing validates staged upload rows and turns them into fact
// records.
//
// Every staging row is either rejected with one or more data-quality issues
// or accepted as exactly one clean record. Operations rows are keyed by
// (factory, year, month) and KPI rows by (employee, year, month, metric);
// within a batch the first occurrence of a key wins, in read order. Any
// metric whose absolute value exceeds its anomaly threshold rejects the
// whole row.
//
// Issues for a row are collected on a quality.Row and committed together
// with the row's decision.
package cleansing
