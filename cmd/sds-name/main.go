// Command sds-name prints the product name of one safety data sheet.
// Exit status is 0 when a name was found, 3 when none was, 1 on error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
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
	fs := flag.NewFlagSet("sds-name", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		file     = fs.String("file", "", "document to name (or pass it as the first argument)")
		simple   = fs.Bool("simple", false, "text layer straight to the model, no OCR or rules")
		noModel  = fs.Bool("no-model", false, "never call the model")
		pages    = fs.Int("pages", 0, "pages to read (default PIPELINE_MAX_PAGES)")
		asJSON   = fs.Bool("json", false, "print the full result as JSON")
		logLevel = fs.String("log-level", "warn", "log level")
	)
	if err := fs.Parse(args); err != nil {
		return common.ExitUsage
	}
	if *file == "" && fs.NArg() > 0 {
		*file = fs.Arg(0)
	}
	if *file == "" {
		fmt.Fprintln(stderr, "Error: a document path is required")
		fs.Usage()
		return common.ExitUsage
	}

	logger := app.NewLogger(stderr, *logLevel)
	cfg := common.LoadConfig()
	if *noModel {
		cfg.Pipeline.SkipModel = true
	}
	if err := cfg.Validate(); err != nil {
		// a missing key only disables the model stage
		logger.Warn("configuration incomplete", "error", err)
	}

	orch, err := app.NewPipeline(cfg, app.Options{Simple: *simple, NoModel: *noModel, MaxPages: *pages}, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return common.ExitCode(err)
	}

	doc, err := ingest.NewScanner(logger).Describe(*file)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return common.ExitFailure
	}

	res := orch.Run(ctx, doc)
	if *asJSON {
		out := struct {
			Document string `json:"document"`
			Path     string `json:"path"`
			Result   any    `json:"result"`
			Error    string `json:"error,omitempty"`
		}{doc.ID, doc.Path, res, res.ErrorMessage()}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return common.ExitFailure
		}
	} else if res.Found() {
		fmt.Fprintln(stdout, res.Name)
	} else {
		fmt.Fprintln(stderr, "could not extract a product name")
	}

	if res.Status != constants.StatusFound {
		return common.ExitNoResult
	}
	return common.ExitOK
}
