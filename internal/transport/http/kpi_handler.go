package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "kpiwarehouse/internal/errors"
	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/internal/middleware"
	api "kpiwarehouse/pkg/contracts/api/v1"
)

// KPIHandler handles KPI calculation and result queries
type KPIHandler struct {
	calculator   Calculator
	reader       WarehouseReader
	validation   *middleware.ValidationMiddleware
	params       *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewKPIHandler creates a new KPI handler
func NewKPIHandler(
	calculator Calculator,
	reader WarehouseReader,
	validation *middleware.ValidationMiddleware,
	errorHandler *apierrors.ErrorHandler,
	logger *slog.Logger,
) *KPIHandler {
	return &KPIHandler{
		calculator:   calculator,
		reader:       reader,
		validation:   validation,
		params:       middleware.NewQueryParamValidator(errorHandler),
		errorHandler: errorHandler,
		logger:       infrastructure.WithComponent(logger, "kpi_handler"),
	}
}

// Routes returns the KPI routes
func (h *KPIHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/calculate", h.Calculate)
	r.Get("/results", h.Results)
	return r
}

// Calculate handles POST /api/kpi/calculate
func (h *KPIHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req api.KPICalculateRequest
	if err := h.validation.DecodeAndValidate(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.calculator.Calculate(r.Context(), req.BatchID, req.PeriodKeys)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.KPICalculationFailed(err))
		return
	}

	h.logger.InfoContext(r.Context(), "KPI calculation requested",
		slog.Int64("batch_id", req.BatchID),
		slog.Int("rows", result.Total()))
	render.JSON(w, r, api.KPICalculateResponse{
		BatchID:      result.BatchID,
		MonthlyRows:  result.MonthlyRows,
		QuarterRows:  result.QuarterRows,
		YearRows:     result.YearRows,
		ProcessingMs: result.ProcessingMs,
	})
}

// Results handles GET /api/kpi/results?batch_id=
func (h *KPIHandler) Results(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.params.ValidateID(w, r, "batch_id", true)
	if !ok {
		return
	}

	rows, err := h.reader.ListCalculated(r.Context(), batchID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.KPIResultsResponse{
		BatchID: batchID,
		Count:   len(rows),
		Results: rows,
	})
}
