package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// pdfToOCR rasterizes the first MaxPages pages to PNG in a private temp dir and OCRs
// them in page order. The directory is removed before returning.
func (e *Extractor) pdfToOCR(ctx context.Context, pdfPath string) (string, int, []string, error) {
	tmpDir, err := os.MkdirTemp("", "sds-ocr-pages-*")
	if err != nil {
		return "", 0, nil, fmt.Errorf("mkdtemp: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	prefix := filepath.Join(tmpDir, "page")
	args := []string{
		"-r", strconv.Itoa(e.cfg.DPI),
		"-png",
		"-f", "1",
		"-l", strconv.Itoa(e.cfg.MaxPages),
		pdfPath, prefix,
	}
	if _, stderr, err := e.runner.Run(ctx, e.cfg.Pdftoppm, args...); err != nil {
		return "", 0, nil, fmt.Errorf("pdftoppm: %w (stderr: %s)", err, truncate(string(stderr), 2<<10))
	}

	pngs, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", 0, nil, fmt.Errorf("glob pages: %w", err)
	}
	if len(pngs) == 0 {
		return "", 0, nil, fmt.Errorf("pdftoppm produced no pages")
	}
	sort.Strings(pngs)
	if len(pngs) > e.cfg.MaxPages {
		pngs = pngs[:e.cfg.MaxPages]
	}

	var (
		sb    strings.Builder
		warns []string
	)
	for i, p := range pngs {
		if err := ctx.Err(); err != nil {
			return "", 0, warns, err
		}
		txt, w, err := e.tesseractOCR(ctx, p)
		warns = append(warns, w...)
		if err != nil {
			return "", 0, warns, fmt.Errorf("page %d: %w", i+1, err)
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(txt)
	}
	return sb.String(), len(pngs), warns, nil
}
