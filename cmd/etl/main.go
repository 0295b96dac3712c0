package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"kpiwarehouse/internal/app"
	"kpiwarehouse/internal/kpi"
	"kpiwarehouse/internal/staging"
	"kpiwarehouse/pkg/contracts/domain"
)

// Modes accepted by -mode
const (
	modeRun    = "run"
	modeKPI    = "kpi"
	modeExport = "export"
	modeServe  = "serve"
	modeSeed   = "seed"
	modeStage  = "stage"
)

type options struct {
	mode    string
	batchID int64
	out     string
	metrics string
	dataset string
	in      string
}

// parseFlags reads the command line. -h prints the flag defaults to usage and
// returns flag.ErrHelp.
func parseFlags(args []string, usage io.Writer) (*options, error) {
	fs := flag.NewFlagSet("etl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	opts := &options{}
	fs.StringVar(&opts.mode, "mode", modeServe, "stage | run | kpi | export | serve | seed")
	fs.Int64Var(&opts.batchID, "batch", 0, "batch id for run, kpi and export")
	fs.StringVar(&opts.out, "out", "", "export file (.xlsx or .csv); defaults to the exports directory")
	fs.StringVar(&opts.metrics, "metrics", "", "metric definitions YAML for seed")
	fs.StringVar(&opts.dataset, "dataset", "", "dataset for stage (operations | kpi)")
	fs.StringVar(&opts.in, "in", "", "source file or directory for stage")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(usage)
			fmt.Fprintln(usage, "Usage of etl:")
			fs.PrintDefaults()
		}
		return nil, err
	}

	switch opts.mode {
	case modeRun, modeKPI, modeExport:
		if opts.batchID <= 0 {
			return nil, fmt.Errorf("-batch is required for mode %q", opts.mode)
		}
	case modeSeed:
		if opts.metrics == "" {
			return nil, errors.New("-metrics is required for mode \"seed\"")
		}
	case modeStage:
		if opts.dataset == "" || opts.in == "" {
			return nil, errors.New("-dataset and -in are required for mode \"stage\"")
		}
	case modeServe:
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.mode)
	}
	return opts, nil
}

// execute runs one non-serving mode and prints its result as JSON
func execute(ctx context.Context, a *app.Application, opts *options, stdout io.Writer) error {
	var result any
	switch opts.mode {
	case modeStage:
		res, err := stage(ctx, a, opts)
		if err != nil {
			return err
		}
		result = res
	case modeRun:
		res, err := a.Services.Batches.Run(ctx, opts.batchID)
		if err != nil {
			return err
		}
		result = res
	case modeKPI:
		res, err := a.Services.KPI.Calculate(ctx, opts.batchID, nil)
		if err != nil {
			return err
		}
		result = res
	case modeExport:
		path, err := a.Services.Exporter.ExportFile(ctx, opts.batchID, opts.out)
		if err != nil {
			return err
		}
		result = map[string]any{"batch_id": opts.batchID, "path": path}
	case modeSeed:
		n, err := kpi.SeedDefinitions(ctx, a.Store, opts.metrics)
		if err != nil {
			return err
		}
		result = map[string]any{"metrics": n, "path": opts.metrics}
	default:
		return fmt.Errorf("mode %q does not run to completion", opts.mode)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// stage loads a single file or every source file of a directory
func stage(ctx context.Context, a *app.Application, opts *options) (*staging.Result, error) {
	dataset := domain.Dataset(strings.ToLower(opts.dataset))
	info, err := os.Stat(opts.in)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return a.Services.Staging.LoadDir(ctx, dataset, opts.in)
	}
	return a.Services.Staging.LoadFiles(ctx, dataset, opts.in)
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "etl: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApplication(ctx)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if opts.mode == modeServe {
		stop()
		if err := application.Run(); err != nil {
			slog.Error("Application error", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	runErr := execute(ctx, application, opts, os.Stdout)
	if err := application.Close(context.Background()); err != nil {
		application.Logger.Error("Shutdown error", slog.String("error", err.Error()))
	}
	if runErr != nil {
		application.Logger.Error("ETL command failed",
			slog.String("mode", opts.mode),
			slog.String("error", runErr.Error()))
		os.Exit(1)
	}
}
