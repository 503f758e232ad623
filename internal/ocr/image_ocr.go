package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// tesseractOCR runs: tesseract <img> stdout -l <langs> [--psm N] [--tessdata-dir DIR]
func (e *Extractor) tesseractOCR(ctx context.Context, imgPath string) (string, []string, error) {
	args := []string{imgPath, "stdout", "-l", e.cfg.Languages}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	stdout, stderr, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, ctxErr
		}
		return "", nil, fmt.Errorf("tesseract: %w (stderr: %s)", err, truncate(string(stderr), 2<<10))
	}

	var warns []string
	if s := strings.TrimSpace(string(stderr)); s != "" {
		for _, line := range strings.Split(s, "\n") {
			if strings.Contains(strings.ToLower(line), "warning") {
				warns = append(warns, strings.TrimSpace(line))
			}
		}
	}
	return string(stdout), warns, nil
}
