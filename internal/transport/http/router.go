package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/trace"

	"kpiwarehouse/internal/config"
	apierrors "kpiwarehouse/internal/errors"
	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/internal/middleware"
)

// RouterConfig carries the dependencies of the API router
type RouterConfig struct {
	Logger     *slog.Logger
	Runner     BatchRunner
	Calculator Calculator
	Reader     WarehouseReader
	Exporter   BatchExporter
	Database   Pinger

	Tracer         trace.Tracer
	Metrics        *infrastructure.BusinessMetrics
	MetricsHandler http.Handler

	RateLimit    config.RateLimitConfig
	IncludeStack bool
}

// NewRouter builds the chi router serving the warehouse API
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	errorHandler := apierrors.NewErrorHandler(logger, cfg.IncludeStack)
	validation := middleware.NewValidationMiddleware(logger, errorHandler)

	r := chi.NewRouter()
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewOTelMiddleware(cfg.Tracer, cfg.Metrics, logger).Handler)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(errorHandler.Recoverer)
	r.Use(middleware.SecurityHeaders)

	health := NewHealthHandler(cfg.Database, logger)
	r.Get("/healthz", health.HealthCheck)
	r.Handle("/metrics", MetricsHandler(cfg.MetricsHandler))

	batches := NewBatchHandler(cfg.Runner, cfg.Reader, cfg.Exporter, validation, errorHandler, logger)
	kpis := NewKPIHandler(cfg.Calculator, cfg.Reader, validation, errorHandler, logger)

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger).Handler)
		}
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(validation.ValidateRequest)

		r.Mount("/batches", batches.Routes())
		r.Mount("/kpi", kpis.Routes())
	})

	return r
}
