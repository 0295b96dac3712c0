package exporter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"kpiwarehouse/internal/config"
	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/pkg/contracts/domain"
)

// Source reads the rows an export needs.
type Source interface {
	ListIssues(ctx context.Context, batchID int64, issueType domain.IssueType) ([]domain.DQIssue, error)
	ListCalculated(ctx context.Context, batchID int64) ([]domain.CalculatedKpiFact, error)
}

// Exporter writes batch exports.
type Exporter struct {
	source Source
	paths  *config.Paths
	logger *slog.Logger
}

// New creates an exporter. paths may be nil when only writer exports are
// used.
func New(source Source, paths *config.Paths, logger *slog.Logger) *Exporter {
	return &Exporter{
		source: source,
		paths:  paths,
		logger: infrastructure.WithComponent(logger, "exporter"),
	}
}

// Export writes the batch export in the given format to w.
func (e *Exporter) Export(ctx context.Context, w io.Writer, batchID int64, format Format) error {
	issues, err := e.source.ListIssues(ctx, batchID, "")
	if err != nil {
		return err
	}

	switch format {
	case FormatCSV:
		err = WriteIssuesCSV(w, issues)
	case FormatXLSX:
		var results []domain.CalculatedKpiFact
		results, err = e.source.ListCalculated(ctx, batchID)
		if err != nil {
			return err
		}
		err = WriteWorkbook(w, issues, results)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Batch exported",
		slog.Int64("batch_id", batchID),
		slog.String("format", string(format)),
		slog.Int("issues", len(issues)))
	return nil
}

// ExportFile writes the batch export to path and returns the path written.
// A relative path is placed under the exports directory; an empty path
// uses the default file name. The format follows the file extension.
func (e *Exporter) ExportFile(ctx context.Context, batchID int64, path string) (string, error) {
	format := FormatXLSX
	if path != "" {
		f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
		if err != nil {
			return "", err
		}
		format = f
	} else {
		path = format.FileName(batchID)
	}
	if !filepath.IsAbs(path) && e.paths != nil {
		path = e.paths.GetExportPath(path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if err := e.Export(ctx, file, batchID, format); err != nil {
		file.Close()
		os.Remove(path)
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return path, nil
}
