// Package app wires the warehouse, the batch and KPI services, telemetry and
// the HTTP router into a single Application, and manages its lifecycle.
//
// Initialization order:
//
//  1. Load configuration from defaults, config.yaml and KPIW_* variables
//  2. Initialize logging and OpenTelemetry
//  3. Open and migrate the warehouse, seeding metric definitions if configured
//  4. Build the cleanser, KPI engine, batch service and exporter
//  5. Build the router and the HTTP server
//
// Run serves until SIGINT or SIGTERM, then shuts the server down within the
// configured timeout and releases the store and telemetry providers. The
// package never calls os.Exit; errors are returned to main.
package app
