package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler serves the Prometheus scrape endpoint. With telemetry
// metrics disabled it still exposes the default registry.
func MetricsHandler(exporter http.Handler) http.Handler {
	if exporter != nil {
		return exporter
	}
	return promhttp.Handler()
}
