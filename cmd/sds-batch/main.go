// Command sds-batch names every safety data sheet in a directory, optionally renaming
// the files, writing an XLSX report and recording the runs in a database.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/app"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/batch"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/common"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/export"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/ingest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := common.LoadConfig()

	fs := flag.NewFlagSet("sds-batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		dir        = fs.String("dir", "", "directory to process (required)")
		out        = fs.String("xlsx", "", "write an XLSX report to this path")
		rename     = fs.Bool("rename", false, "rename files after the extracted product name")
		dsn        = fs.String("db", cfg.Database.DSN, "record runs in this database (sqlite path/DSN or postgres URL)")
		simple     = fs.Bool("simple", false, "text layer straight to the model, no OCR or rules")
		noModel    = fs.Bool("no-model", false, "never call the model")
		workers    = fs.Int("workers", cfg.Batch.Workers, "documents in flight (1 = sequential)")
		delay      = fs.Duration("delay", cfg.Batch.Delay, "pause between documents")
		docTimeout = fs.Duration("doc-timeout", cfg.Batch.DocTimeout, "bound for one document")
		keepDups   = fs.Bool("keep-duplicates", false, "process files with identical content more than once")
		hidden     = fs.Bool("hidden", false, "include hidden files and directories")
		logLevel   = fs.String("log-level", "info", "log level")
	)
	if err := fs.Parse(args); err != nil {
		return common.ExitUsage
	}
	if *dir == "" {
		fmt.Fprintln(stderr, "Error: -dir is required")
		return common.ExitUsage
	}

	logger := app.NewLogger(stderr, *logLevel)
	slog.SetDefault(logger)

	if *noModel {
		cfg.Pipeline.SkipModel = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("configuration incomplete", "error", err)
	}
	orch, err := app.NewPipeline(cfg, app.Options{Simple: *simple, NoModel: *noModel}, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return common.ExitCode(err)
	}

	scanner := ingest.NewScanner(logger)
	scanner.KeepDuplicates = *keepDups
	docs, stats, err := scanner.ScanDirectory(ctx, *dir, !*hidden)
	if err != nil {
		logger.Error("failed to scan directory", "dir", *dir, "error", err)
		return common.ExitFailure
	}
	for _, f := range stats.Failures {
		logger.Warn("skipped file", "path", f.Path, "error", f.Err)
	}
	if len(docs) == 0 {
		fmt.Fprintf(stdout, "No documents found in %s\n", *dir)
		return common.ExitOK
	}

	opts := []batch.Option{
		batch.WithDelay(*delay),
		batch.WithWorkers(*workers),
		batch.WithDocumentTimeout(*docTimeout),
		batch.WithLogger(logger),
	}
	var exporter *export.Service
	if *dsn != "" {
		dbCfg := cfg.Database
		dbCfg.DSN = *dsn
		store, closeFn, err := app.OpenStore(ctx, dbCfg, logger)
		if err != nil {
			logger.Error("failed to initialize database", "error", err)
			return common.ExitFailure
		}
		defer closeFn()
		opts = append(opts, batch.WithRecorder(store))
		exporter = export.NewService(store, logger)
	} else {
		exporter = export.NewService(nil, logger)
	}

	start := time.Now()
	outcome, err := batch.NewRunner(orch, opts...).Run(ctx, docs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return common.ExitFailure
	}

	renamed := 0
	for _, e := range outcome.Entries {
		name := e.Result.Name
		if !e.Result.Found() {
			name = "-"
		}
		line := fmt.Sprintf("%s\t%s\t%s", e.Document.ID, name, e.Result.Status)
		if *rename && e.Result.Found() {
			newPath, err := ingest.RenameToName(e.Document.Path, e.Result.Name)
			if err != nil {
				logger.Error("rename failed", "path", e.Document.Path, "name", e.Result.Name, "error", err)
			} else if newPath != e.Document.Path {
				renamed++
				line += "\t-> " + filepath.Base(newPath)
			}
		}
		fmt.Fprintln(stdout, line)
	}

	if *out != "" {
		xlsx, err := exporter.OutcomeXLSX(outcome)
		if err != nil {
			logger.Error("failed to export results", "error", err)
			return common.ExitFailure
		}
		if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
			logger.Error("failed to write output file", "path", *out, "error", err)
			return common.ExitFailure
		}
	}

	logger.Info("batch processing complete",
		"batch_id", outcome.BatchID,
		"documents", outcome.Len(),
		"found", outcome.Succeeded,
		"no_result", outcome.NoResult,
		"failed", outcome.Failed,
		"renamed", renamed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	fmt.Fprintf(stdout, "\nBatch %s complete\n", outcome.BatchID)
	fmt.Fprintf(stdout, "- Documents: %d (skipped duplicates: %d)\n", outcome.Len(), stats.Deduplicated)
	fmt.Fprintf(stdout, "- %s: %d, %s: %d, %s: %d\n",
		constants.StatusFound, outcome.Succeeded, constants.StatusNoResult, outcome.NoResult, constants.StatusFailed, outcome.Failed)
	if *rename {
		fmt.Fprintf(stdout, "- Renamed: %d\n", renamed)
	}
	if *out != "" {
		fmt.Fprintf(stdout, "- Report: %s\n", *out)
	}
	return common.ExitOK
}
