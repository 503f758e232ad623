package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Languages string // tesseract -l value, default "eng+nor"
	DPI       int    // rasterization DPI for scanned PDFs, default 300
	MaxPages  int    // pages rasterized from a PDF, default 1

	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text; 0 = tesseract default

	Timeout time.Duration // bound for one Recognize call, default 60s
}

type Result struct {
	Text      string
	Pages     int
	Method    string
	Languages string
	Duration  time.Duration
	Warnings  []string
	Err       error // why Text is empty, if it is; never returned to callers as an error
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return NewExtractorWithRunner(cfg, NewExecRunner(logger), logger)
}

// NewExtractorWithRunner is NewExtractor with an explicit command runner.
func NewExtractorWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Languages == "" {
		cfg.Languages = constants.DefaultOCRLanguages
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = constants.DefaultMaxPages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// Recognize OCRs the document's first pages. It never fails: on any error, or when the
// timeout elapses, Result.Text is empty and Result.Err says why. Every temp file the
// call creates is removed before it returns.
func (e *Extractor) Recognize(ctx context.Context, doc entity.Document) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	res := Result{Method: constants.MethodOCR, Languages: e.cfg.Languages}
	e.logger.Debug("starting ocr", "doc_id", doc.ID, "format", doc.Format(), "langs", e.cfg.Languages)

	path, cleanup, err := doc.LocalPath("sds-ocr-*")
	defer cleanup()
	if err != nil {
		return e.fail(doc, res, start, fmt.Errorf("ocr input: %w", err))
	}

	var (
		text  string
		pages int
		warns []string
	)
	switch doc.Format() {
	case constants.PDF:
		text, pages, warns, err = e.pdfToOCR(ctx, path)
	case constants.IMAGE:
		text, warns, err = e.tesseractOCR(ctx, path)
		pages = 1
	default:
		err = fmt.Errorf("ocr: unsupported format %q", doc.Format())
	}
	res.Warnings = warns
	if err != nil {
		return e.fail(doc, res, start, err)
	}

	res.Text = Normalize(text)
	res.Pages = pages
	res.Duration = time.Since(start)
	e.logger.Info("ocr done",
		"doc_id", doc.ID,
		"pages", pages,
		"chars", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res
}

func (e *Extractor) fail(doc entity.Document, res Result, start time.Time, err error) Result {
	res.Text = ""
	res.Err = err
	res.Duration = time.Since(start)
	e.logger.Warn("ocr failed",
		"doc_id", doc.ID,
		"error", err,
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res
}
