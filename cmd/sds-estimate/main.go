// Command sds-estimate prints the worst-case model cost of naming a batch.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/andydreyson/v0-safetydatas-sub001/internal/app"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/common"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/cost"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/ingest"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	defaults := cost.DefaultPrices()

	fs := flag.NewFlagSet("sds-estimate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		docs     = fs.Int("docs", 0, "number of documents")
		pages    = fs.Float64("pages", 1, "average pages per document")
		dir      = fs.String("dir", "", "derive document and page counts from a directory")
		model    = fs.String("model", defaults.Model, "model name shown in the report")
		inPrice  = fs.Float64("input-price", defaults.InputPerMTok, "USD per million input tokens")
		outPrice = fs.Float64("output-price", defaults.OutputPerMTok, "USD per million output tokens")
		asJSON   = fs.Bool("json", false, "print JSON")
		logLevel = fs.String("log-level", "warn", "log level")
	)
	if err := fs.Parse(args); err != nil {
		return common.ExitUsage
	}

	v := common.NewValidator().
		Field("docs", *docs, common.NonNegative).
		Field("pages", *pages, nonNegativeFloat).
		Field("input-price", *inPrice, nonNegativeFloat).
		Field("output-price", *outPrice, nonNegativeFloat)
	if err := common.Validate(v); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return common.ExitUsage
	}

	n, avg := *docs, *pages
	if *dir != "" {
		logger := app.NewLogger(stderr, *logLevel)
		found, _, err := ingest.NewScanner(logger).ScanDirectory(ctx, *dir, true)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return common.ExitFailure
		}
		n, avg = len(found), averagePages(found)
	}

	prices := defaults
	prices.Model, prices.InputPerMTok, prices.OutputPerMTok = *model, *inPrice, *outPrice
	est := cost.Compute(n, avg, prices)

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(est); err != nil {
			return common.ExitFailure
		}
		return common.ExitOK
	}

	fmt.Fprintf(stdout, "Model:              %s\n", est.Model)
	fmt.Fprintf(stdout, "Documents:          %d\n", est.Documents)
	fmt.Fprintf(stdout, "Average pages:      %.2f\n", est.AvgPages)
	capped := ""
	if est.InputTokensCap {
		capped = " (capped)"
	}
	fmt.Fprintf(stdout, "Input tokens/doc:   %d%s\n", est.InputTokens, capped)
	fmt.Fprintf(stdout, "Output tokens/doc:  %d\n", est.OutputTokens)
	fmt.Fprintf(stdout, "Cost per document:  $%.6f\n", est.CostPerDoc)
	fmt.Fprintf(stdout, "Total (worst case): $%.4f\n", est.TotalCost)
	return common.ExitOK
}

func nonNegativeFloat(field string, value interface{}) *common.ValidationError {
	if f, ok := value.(float64); ok && f < 0 {
		return &common.ValidationError{Field: field, Value: value, Message: "must not be negative"}
	}
	return nil
}

// averagePages counts documents without a known page count as one page.
func averagePages(docs []entity.Document) float64 {
	if len(docs) == 0 {
		return 0
	}
	total := 0
	for _, d := range docs {
		if d.Pages > 0 {
			total += d.Pages
		} else {
			total++
		}
	}
	return float64(total) / float64(len(docs))
}
