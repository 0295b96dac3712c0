package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"kpiwarehouse/internal/batch"
	apierrors "kpiwarehouse/internal/errors"
	"kpiwarehouse/internal/exporter"
	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/internal/middleware"
	"kpiwarehouse/internal/warehouse"
	api "kpiwarehouse/pkg/contracts/api/v1"
	"kpiwarehouse/pkg/contracts/domain"
)

type batchIDKey struct{}

// BatchHandler handles batch runs, status, issues and exports
type BatchHandler struct {
	runner       BatchRunner
	reader       WarehouseReader
	exporter     BatchExporter
	validation   *middleware.ValidationMiddleware
	params       *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(
	runner BatchRunner,
	reader WarehouseReader,
	exp BatchExporter,
	validation *middleware.ValidationMiddleware,
	errorHandler *apierrors.ErrorHandler,
	logger *slog.Logger,
) *BatchHandler {
	return &BatchHandler{
		runner:       runner,
		reader:       reader,
		exporter:     exp,
		validation:   validation,
		params:       middleware.NewQueryParamValidator(errorHandler),
		errorHandler: errorHandler,
		logger:       infrastructure.WithComponent(logger, "batch_handler"),
	}
}

// Routes returns the batch routes
func (h *BatchHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/{batchID}", func(r chi.Router) {
		r.Use(h.BatchCtx)
		r.Get("/", h.GetBatch)
		r.Post("/run", h.RunBatch)
		r.Get("/issues", h.ListIssues)
		r.Get("/issues/export", h.ExportIssues)
	})
	return r
}

// BatchCtx parses the batchID path parameter into the request context
func (h *BatchHandler) BatchCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.params.ParseID(w, r, "batchID", chi.URLParam(r, "batchID"))
		if !ok {
			return
		}
		ctx := context.WithValue(r.Context(), batchIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func batchIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(batchIDKey{}).(int64)
	return id
}

// RunBatch handles POST /api/batches/{batchID}/run
func (h *BatchHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	batchID := batchIDFrom(r.Context())

	result, err := h.runner.Run(r.Context(), batchID)
	if err != nil {
		h.errorHandler.HandleError(w, r, batchErrorToAPI(err))
		return
	}

	h.logger.InfoContext(r.Context(), "Batch run requested",
		slog.Int64("batch_id", batchID),
		slog.Int("loaded_rows", result.LoadedRows),
		slog.Int("dq_issues", result.DQIssues))
	render.JSON(w, r, result)
}

// GetBatch handles GET /api/batches/{batchID}
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBatch(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, b)
}

// ListIssues handles GET /api/batches/{batchID}/issues?type=
func (h *BatchHandler) ListIssues(w http.ResponseWriter, r *http.Request) {
	req := api.IssueListRequest{IssueType: r.URL.Query().Get("type")}
	if err := h.validation.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	b, ok := h.loadBatch(w, r)
	if !ok {
		return
	}

	issues, err := h.reader.ListIssues(r.Context(), b.ID, domain.IssueType(req.IssueType))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.IssueListResponse{
		BatchID: b.ID,
		Count:   len(issues),
		Issues:  issues,
	})
}

// ExportIssues handles GET /api/batches/{batchID}/issues/export?format=
func (h *BatchHandler) ExportIssues(w http.ResponseWriter, r *http.Request) {
	name, ok := h.params.ValidateEnum(w, r, "format",
		[]string{string(exporter.FormatXLSX), string(exporter.FormatCSV)}, string(exporter.FormatXLSX))
	if !ok {
		return
	}
	format := exporter.Format(name)

	b, ok := h.loadBatch(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Export(r.Context(), &buf, b.ID, format); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName(b.ID)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "Export download interrupted",
			slog.Int64("batch_id", b.ID),
			slog.String("error", err.Error()))
	}
}

func (h *BatchHandler) loadBatch(w http.ResponseWriter, r *http.Request) (*domain.Batch, bool) {
	batchID := batchIDFrom(r.Context())
	b, err := h.reader.GetBatch(r.Context(), batchID)
	if errors.Is(err, warehouse.ErrNotFound) {
		h.errorHandler.HandleError(w, r, apierrors.BatchNotFound(batchID))
		return nil, false
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return nil, false
	}
	return b, true
}

// batchErrorToAPI maps batch service failures to HTTP errors
func batchErrorToAPI(err error) error {
	var bErr *batch.BatchError
	if !errors.As(err, &bErr) {
		return err
	}

	switch bErr.Type {
	case batch.ErrorTypeNotFound:
		return apierrors.BatchNotFound(bErr.BatchID)
	case batch.ErrorTypeUnsupportedDataset:
		return apierrors.UnsupportedDataset(bErr.Error())
	default:
		return apierrors.BatchFailed(bErr.Error())
	}
}
