package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"kpiwarehouse/internal/batch"
	"kpiwarehouse/internal/files"
	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/internal/validation"
	"kpiwarehouse/pkg/contracts/domain"
)

// RequiredColumns lists the header columns a source file of each dataset
// must carry. Values may still be blank; that is a row-level issue.
var RequiredColumns = map[domain.Dataset][]string{
	domain.DatasetOperations: {"factory_code", "date"},
	domain.DatasetKPI:        {"employee_id", "indicator", "value", "date"},
}

// ErrNoSourceFiles is returned when a directory holds nothing to stage.
var ErrNoSourceFiles = errors.New("no source files found")

// Stager creates upload batches and appends staging rows.
type Stager interface {
	CreateBatch(ctx context.Context, dataset domain.Dataset) (int64, error)
	StageRows(ctx context.Context, table string, batchID int64, payloads []string) error
}

// FileSummary reports the rows staged from one file.
type FileSummary struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// Result describes a staged upload batch.
type Result struct {
	BatchID int64          `json:"batch_id"`
	Dataset domain.Dataset `json:"dataset"`
	Rows    int            `json:"rows"`
	Files   []FileSummary  `json:"files"`
}

// Loader stages source files.
type Loader struct {
	store     Stager
	validator *validation.FileValidator
	logger    *slog.Logger
}

// NewLoader creates a loader writing to store.
func NewLoader(store Stager, logger *slog.Logger) *Loader {
	return &Loader{
		store:     store,
		validator: validation.NewFileValidator(logger),
		logger:    infrastructure.WithComponent(logger, "staging"),
	}
}

// LoadFiles reads every file, then stages all of their rows under one new
// batch. Rows are numbered across files in the order given. Any unreadable
// file or missing required column fails the load before a batch is created.
func (l *Loader) LoadFiles(ctx context.Context, dataset domain.Dataset, paths ...string) (*Result, error) {
	table, ok := batch.StagingTables[dataset]
	if !ok {
		return nil, fmt.Errorf("unsupported dataset %q", dataset)
	}
	if len(paths) == 0 {
		return nil, ErrNoSourceFiles
	}

	result := &Result{Dataset: dataset}
	var payloads []string
	for _, path := range paths {
		rows, err := l.readSource(path, dataset)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, rows...)
		result.Files = append(result.Files, FileSummary{Name: filepath.Base(path), Rows: len(rows)})
	}

	id, err := l.store.CreateBatch(ctx, dataset)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	if err := l.store.StageRows(ctx, table, id, payloads); err != nil {
		return nil, fmt.Errorf("stage batch %d: %w", id, err)
	}
	result.BatchID = id
	result.Rows = len(payloads)

	l.logger.InfoContext(ctx, "Source files staged",
		slog.Int64("batch_id", id),
		slog.String("dataset", string(dataset)),
		slog.Int("files", len(paths)),
		slog.Int("rows", result.Rows))
	return result, nil
}

// LoadDir stages every source file directly inside dir, oldest first.
func (l *Loader) LoadDir(ctx context.Context, dataset domain.Dataset, dir string) (*Result, error) {
	if err := l.validator.ValidateInputDirectory(dir); err != nil {
		return nil, err
	}
	found, err := files.NewDiscovery("").FindSourceFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSourceFiles, dir)
	}

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.Path
	}
	return l.LoadFiles(ctx, dataset, paths...)
}

// readSource validates and reads one file into JSON payloads
func (l *Loader) readSource(path string, dataset domain.Dataset) ([]string, error) {
	if err := l.validator.ValidateSourceFile(path); err != nil {
		return nil, err
	}
	table, err := ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if missing := validation.MissingColumns(table.Header, RequiredColumns[dataset]); len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing required columns: %s", filepath.Base(path), strings.Join(missing, ", "))
	}

	records := table.Records()
	payloads := make([]string, len(records))
	for i, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode row %d of %s: %w", i+1, filepath.Base(path), err)
		}
		payloads[i] = string(raw)
	}
	return payloads, nil
}
