package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"kpiwarehouse/internal/batch"
	"kpiwarehouse/internal/cleansing"
	"kpiwarehouse/internal/config"
	"kpiwarehouse/internal/exporter"
	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/internal/kpi"
	"kpiwarehouse/internal/staging"
	transporthttp "kpiwarehouse/internal/transport/http"
	"kpiwarehouse/internal/warehouse"
	"kpiwarehouse/pkg/contracts"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Paths         *config.Paths
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	Store         *warehouse.Store
	Services      *ServiceContainer
	Router        http.Handler
	Server        *http.Server
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Batches  *batch.Service
	KPI      *kpi.Engine
	Exporter *exporter.Exporter
	Staging  *staging.Loader
}

// NewApplication loads the configuration, initializes the logger and wires
// the application.
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(ctx, cfg, logger)
}

// New wires every component from an already loaded configuration. The
// returned application owns the store and the telemetry providers and must be
// released with Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.InfoContext(ctx, "Application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version))

	paths, err := config.GetPaths(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	if dbFile := cfg.Database.FilePath(); dbFile != "" {
		if err := os.MkdirAll(filepath.Dir(dbFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	otelCfg := infrastructure.NewOTelConfig(cfg.Telemetry)
	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		providers.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	store, err := warehouse.Open(ctx, cfg.Database, logger)
	if err != nil {
		providers.Shutdown(ctx)
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		Paths:         paths,
		OTelProviders: providers,
		Metrics:       metrics,
		Store:         store,
	}

	if err := a.initializeServices(ctx); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.Router = transporthttp.NewRouter(transporthttp.RouterConfig{
		Logger:         logger,
		Runner:         a.Services.Batches,
		Calculator:     a.Services.KPI,
		Reader:         store,
		Exporter:       a.Services.Exporter,
		Database:       store,
		Tracer:         providers.Tracer,
		Metrics:        metrics,
		MetricsHandler: providers.PrometheusHTTP,
		RateLimit:      cfg.Server.RateLimit,
		IncludeStack:   otelCfg.Environment == "development",
	})
	a.createServer()

	return a, nil
}

// initializeServices seeds metric definitions and builds the services
func (a *Application) initializeServices(ctx context.Context) error {
	if path := a.Config.KPI.DefinitionsFile; path != "" {
		n, err := kpi.SeedDefinitions(ctx, a.Store, path)
		if err != nil {
			return fmt.Errorf("failed to seed metric definitions: %w", err)
		}
		a.Logger.InfoContext(ctx, "Metric definitions seeded",
			slog.String("path", path),
			slog.Int("count", n))
	}

	engine := kpi.NewEngine(a.Store, a.Logger, kpi.WithMetrics(a.Metrics))
	cleanser := cleansing.NewCleanser(
		cleansing.NewThresholds(a.Config.Cleansing.DefaultAnomalyThreshold, a.Config.Cleansing.AnomalyThresholds),
		a.Logger,
	)

	opts := []batch.Option{batch.WithMetrics(a.Metrics)}
	if a.Config.KPI.AutoCalculate {
		opts = append(opts, batch.WithAutoCalculate(engine))
	}

	a.Services = &ServiceContainer{
		Batches:  batch.NewService(a.Store, cleanser, a.Logger, opts...),
		KPI:      engine,
		Exporter: exporter.New(a.Store, a.Paths, a.Logger),
		Staging:  staging.NewLoader(a.Store, a.Logger),
	}
	return nil
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Serve listens on the configured port until ctx is cancelled
func (a *Application) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener serves HTTP on ln until ctx is cancelled, then shuts the
// server down within the configured shutdown timeout.
func (a *Application) ServeListener(ctx context.Context, ln net.Listener) error {
	a.Logger.InfoContext(ctx, "HTTP server listening",
		slog.String("address", ln.Addr().String()),
		slog.String("level", a.Config.Logging.Level))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.InfoContext(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Run serves until SIGINT or SIGTERM and releases every resource afterwards
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := a.Serve(ctx)
	closeErr := a.Close(context.Background())
	return errors.Join(serveErr, closeErr)
}

// Close releases the store, flushes telemetry and closes the log file
func (a *Application) Close(ctx context.Context) error {
	var errs []error

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close warehouse: %w", err))
		}
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	return errors.Join(errs...)
}
