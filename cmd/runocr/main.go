// Command runocr dumps the text the pipeline would see for one document: the
// embedded text layer and, unless disabled, the OCR text. Useful for tuning rules.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/andydreyson/v0-safetydatas-sub001/internal/app"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/common"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/ingest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("runocr", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		withOCR  = fs.Bool("ocr", true, "also run OCR")
		pages    = fs.Int("pages", 0, "pages to read (default PIPELINE_MAX_PAGES)")
		logLevel = fs.String("log-level", "info", "log level")
	)
	if err := fs.Parse(args); err != nil {
		return common.ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: runocr [-ocr=false] [-pages N] <file>")
		return common.ExitUsage
	}

	logger := app.NewLogger(stderr, *logLevel)
	cfg := common.LoadConfig()
	maxPages := cfg.Pipeline.MaxPages
	if *pages > 0 {
		maxPages = *pages
	}

	doc, err := ingest.NewScanner(logger).Describe(fs.Arg(0))
	if err != nil {
		logger.Error("cannot read document", "path", fs.Arg(0), "error", err)
		return common.ExitFailure
	}
	text, recognizer := app.NewTextSources(cfg.OCR, maxPages, logger)

	start := time.Now()
	layer := text.Extract(ctx, doc)
	logger.Info("text layer",
		"doc_id", doc.ID,
		"method", layer.Method,
		"pages", layer.Pages,
		"chars", len([]rune(layer.Text)),
		"error", errString(layer.Err),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	fmt.Fprintf(stdout, "=== text layer (%s)\n%s\n", layer.Method, layer.Text)

	if !*withOCR {
		return common.ExitOK
	}
	rec := recognizer.Recognize(ctx, doc)
	logger.Info("ocr",
		"doc_id", doc.ID,
		"langs", rec.Languages,
		"pages", rec.Pages,
		"chars", len([]rune(rec.Text)),
		"warnings", rec.Warnings,
		"error", errString(rec.Err),
		"duration_ms", rec.Duration.Milliseconds(),
	)
	fmt.Fprintf(stdout, "=== ocr (%s)\n%s\n", rec.Languages, rec.Text)
	return common.ExitOK
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
