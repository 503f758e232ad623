package textlayer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/ocr"
)

const defaultMaxTextBytes = 100 * 1024

type Config struct {
	MaxPages     int    // pages read from a PDF, default 1
	Pdftotext    string // fallback binary; if empty -> "pdftotext"
	NoPdftotext  bool   // skip the pdftotext fallback entirely
	MaxTextBytes int64  // cap for TEXT documents and extracted text, default 100KB
	Timeout      time.Duration
}

type Result struct {
	Text   string
	Method string
	Pages  int   // pages the PDF reports, 0 if unknown
	Err    error // last failure seen; Text may still be non-empty from a fallback
}

// Extractor reads the embedded text layer of a document without OCR.
type Extractor struct {
	cfg     Config
	runner  ocr.Runner
	logger  *slog.Logger
	libText func(r io.ReaderAt, size int64, maxPages int) (string, int, error)
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return NewExtractorWithRunner(cfg, ocr.NewExecRunner(logger), logger)
}

func NewExtractorWithRunner(cfg Config, runner ocr.Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = constants.DefaultMaxPages
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.MaxTextBytes <= 0 {
		cfg.MaxTextBytes = defaultMaxTextBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger, libText: readPDFText}
}

// Extract returns the text layer of the first MaxPages pages. Images have no text layer.
// It never fails outward: errors are logged and reported in Result.Err with empty Text.
func (e *Extractor) Extract(ctx context.Context, doc entity.Document) Result {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	switch doc.Format() {
	case constants.PDF:
		return e.extractPDF(ctx, doc)
	case constants.TEXT:
		return e.extractPlain(doc)
	case constants.IMAGE:
		return Result{Method: constants.MethodTextLayer}
	default:
		err := fmt.Errorf("text layer: unsupported format %q", doc.Format())
		e.logger.Warn("text layer skipped", "doc_id", doc.ID, "error", err)
		return Result{Method: constants.MethodTextLayer, Err: err}
	}
}

func (e *Extractor) extractPDF(ctx context.Context, doc entity.Document) Result {
	res := Result{Method: constants.MethodTextLayer}

	text, pages, err := e.fromLibrary(doc)
	res.Pages = pages
	if err == nil && strings.TrimSpace(text) != "" {
		res.Text = text
		e.logger.Debug("text layer extracted", "doc_id", doc.ID, "pages", pages, "chars", len(text))
		return res
	}
	if err != nil {
		res.Err = err
		e.logger.Debug("pdf library failed", "doc_id", doc.ID, "error", err)
	}
	if e.cfg.NoPdftotext {
		return res
	}

	text, err = e.fromPdftotext(ctx, doc)
	if err != nil {
		res.Err = err
		e.logger.Warn("text layer unavailable", "doc_id", doc.ID, "error", err)
		return res
	}
	res.Text = text
	res.Method = constants.MethodPDFToText
	return res
}

func (e *Extractor) fromLibrary(doc entity.Document) (text string, pages int, err error) {
	ra, size, closeFn, err := doc.Open()
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = closeFn() }()
	text, pages, err = e.libText(ra, size, e.cfg.MaxPages)
	return capBytes(text, e.cfg.MaxTextBytes), pages, err
}

func (e *Extractor) fromPdftotext(ctx context.Context, doc entity.Document) (string, error) {
	path, cleanup, err := doc.LocalPath("sds-text-*")
	defer cleanup()
	if err != nil {
		return "", fmt.Errorf("pdftotext input: %w", err)
	}
	args := []string{
		"-f", "1",
		"-l", strconv.Itoa(e.cfg.MaxPages),
		"-layout",
		"-enc", "UTF-8",
		path, "-",
	}
	stdout, _, err := e.runner.Run(ctx, e.cfg.Pdftotext, args...)
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return capBytes(string(stdout), e.cfg.MaxTextBytes), nil
}

func (e *Extractor) extractPlain(doc entity.Document) Result {
	res := Result{Method: constants.MethodTextLayer}
	ra, size, closeFn, err := doc.Open()
	if err != nil {
		res.Err = err
		e.logger.Warn("text document unreadable", "doc_id", doc.ID, "error", err)
		return res
	}
	defer func() { _ = closeFn() }()

	n := size
	if n > e.cfg.MaxTextBytes {
		n = e.cfg.MaxTextBytes
	}
	b, err := io.ReadAll(io.NewSectionReader(ra, 0, n))
	if err != nil {
		res.Err = fmt.Errorf("read text document: %w", err)
		return res
	}
	res.Text = strings.ToValidUTF8(string(b), "")
	return res
}

// readPDFText reads page text with ledongthuc/pdf. The library panics on some
// malformed files, so the panic is turned into an error.
func readPDFText(r io.ReaderAt, size int64, maxPages int) (text string, pages int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("panic during pdf text extraction: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf reader: %w", err)
	}
	pages = reader.NumPage()
	limit := pages
	if maxPages > 0 && limit > maxPages {
		limit = maxPages
	}

	var sb strings.Builder
	for i := 1; i <= limit; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			return "", pages, fmt.Errorf("page %d: %w", i, err)
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(txt)
	}
	return sb.String(), pages, nil
}

func capBytes(s string, max int64) string {
	if int64(len(s)) <= max {
		return s
	}
	return strings.ToValidUTF8(s[:max], "")
}
