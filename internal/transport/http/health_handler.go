package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/pkg/contracts"
)

const healthCheckTimeout = 2 * time.Second

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	database Pinger
	logger   *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(database Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		database: database,
		logger:   infrastructure.WithComponent(logger, "health_handler"),
	}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   contracts.Version,
		Timestamp: time.Now().UTC(),
		Checks:    map[string]string{"database": "ok"},
	}

	if h.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.database.Ping(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "Database health check failed", slog.String("error", err.Error()))
			resp.Status = "unavailable"
			resp.Checks["database"] = err.Error()
			render.Status(r, http.StatusServiceUnavailable)
		}
	}

	render.JSON(w, r, resp)
}
