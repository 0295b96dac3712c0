// Package http exposes the warehouse over a small JSON API: batch runs and
// their DQ issues, issue exports, KPI calculation and calculated results.
//
// Handlers stay thin. They parse and validate the request, call the batch
// service, KPI engine or store, and render the result with chi/render.
// Every error response is an RFC 7807 problem document produced by
// internal/errors.
//
// Routes:
//
//	GET  /healthz
//	GET  /metrics
//	POST /api/batches/{batchID}/run
//	GET  /api/batches/{batchID}
//	GET  /api/batches/{batchID}/issues?type=
//	GET  /api/batches/{batchID}/issues/export?format=xlsx|csv
//	POST /api/kpi/calculate
//	GET  /api/kpi/results?batch_id=
package http
