package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"kpiwarehouse/internal/config"
)

var (
	loggerMu   sync.Mutex
	appLogger  *slog.Logger
	appLogFile *os.File
)

type contextKey string

const (
	// TraceIDContextKey stores the run trace id
	TraceIDContextKey contextKey = "trace_id"
	// BatchIDContextKey stores the upload batch being processed
	BatchIDContextKey contextKey = "batch_id"
)

// InitializeLogger builds the process logger from cfg and installs it as the
// slog default. Later calls return the logger built by the first one.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if appLogger != nil {
		return appLogger, nil
	}

	output, file, err := logOutput(cfg)
	if err != nil {
		return nil, err
	}
	appLogFile = file
	appLogger = NewJSONLogger(output, cfg.Level)
	slog.SetDefault(appLogger)
	return appLogger, nil
}

// GetLogger returns the process logger, or slog's default before
// InitializeLogger has run.
func GetLogger() *slog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if appLogger == nil {
		return slog.Default()
	}
	return appLogger
}

func logOutput(cfg config.LoggingConfig) (io.Writer, *os.File, error) {
	mode := strings.ToLower(cfg.Output)
	if mode != "file" && mode != "both" {
		return os.Stdout, nil, nil
	}

	file, err := openLogFile(cfg.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	if mode == "file" {
		return file, file, nil
	}
	return io.MultiWriter(os.Stdout, file), file, nil
}

// NewJSONLogger builds a JSON logger writing to w. Records logged with a
// context carry its trace id, batch id and active span id.
func NewJSONLogger(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     parseLogLevel(level),
	})
	return slog.New(&correlationHandler{Handler: handler})
}

// correlationHandler copies run identifiers from the context onto records.
// batch_id is skipped when the logger already carries one.
type correlationHandler struct {
	slog.Handler
	hasBatchID bool
}

func (h *correlationHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := GetTraceID(ctx); traceID != "" {
		r.AddAttrs(slog.String("trace_id", traceID))
	}
	if batchID, ok := BatchIDFromContext(ctx); ok && !h.hasBatchID && !recordHasBatchID(r) {
		r.AddAttrs(slog.Int64("batch_id", batchID))
	}
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			r.AddAttrs(slog.String("span_id", sc.SpanID().String()))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	has := h.hasBatchID
	for _, a := range attrs {
		if a.Key == "batch_id" {
			has = true
		}
	}
	return &correlationHandler{Handler: h.Handler.WithAttrs(attrs), hasBatchID: has}
}

func (h *correlationHandler) WithGroup(name string) slog.Handler {
	return &correlationHandler{Handler: h.Handler.WithGroup(name), hasBatchID: h.hasBatchID}
}

func recordHasBatchID(r slog.Record) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		found = a.Key == "batch_id"
		return !found
	})
	return found
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(TraceIDContextKey).(string)
	return traceID
}

// WithBatchID marks ctx as belonging to a batch run or KPI calculation.
func WithBatchID(ctx context.Context, batchID int64) context.Context {
	return context.WithValue(ctx, BatchIDContextKey, batchID)
}

// BatchIDFromContext returns the batch set by WithBatchID.
func BatchIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(BatchIDContextKey).(int64)
	return id, ok
}

// CloseLogFile closes the log file opened by InitializeLogger, if any.
func CloseLogFile() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if appLogFile == nil {
		return nil
	}
	err := appLogFile.Close()
	appLogFile = nil
	return err
}

// ResetLoggerForTesting drops the process logger so the next
// InitializeLogger call builds a new one.
func ResetLoggerForTesting() {
	_ = CloseLogFile()
	loggerMu.Lock()
	appLogger = nil
	loggerMu.Unlock()
}

func openLogFile(filePath string) (*os.File, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}
	return file, nil
}
