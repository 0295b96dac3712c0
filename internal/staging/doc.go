// Package staging loads CSV and XLSX source files into the staging tables
// as a new upload batch. Each data row becomes one JSON payload keyed by the
// normalized column header; row-level validation is left to the cleanser.
package staging
