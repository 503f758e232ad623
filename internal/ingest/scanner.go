package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
)

// FileError is a file the scan could not turn into a document.
type FileError struct {
	Path string
	Err  string
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
	Failures     []FileError
}

// Scanner turns files on disk into pipeline documents.
type Scanner struct {
	KeepDuplicates bool // keep files whose content hash was already seen in the same scan
	CountPages     bool // read PDF page counts with pdfcpu
	logger         *slog.Logger
}

func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{CountPages: true, logger: logger}
}

// Describe builds a Document for a single file. The document ID is the file name.
func (s *Scanner) Describe(path string) (entity.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entity.Document{}, err
	}
	return s.describe(abs, filepath.Base(abs))
}

func (s *Scanner) describe(abs, id string) (entity.Document, error) {
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return entity.Document{}, fmt.Errorf("unsupported or missing extension: %q", ext)
	}

	sum, err := hashFile(abs)
	if err != nil {
		return entity.Document{}, err
	}

	doc := entity.Document{
		ID:          id,
		Path:        abs,
		Name:        filepath.Base(abs),
		MediaType:   s.sniff(abs, ext),
		ContentHash: hex.EncodeToString(sum),
	}
	if s.CountPages && doc.Format() == constants.PDF {
		if n, err := pageCount(abs); err == nil {
			doc.Pages = n
		} else {
			s.logger.Debug("page count failed", "path", abs, "error", err)
		}
	}
	return doc, nil
}

// ScanDirectory walks root, skips hidden entries if requested, and returns one document
// per allowed file in walk order (lexical). IDs are slash-separated paths relative to root.
func (s *Scanner) ScanDirectory(ctx context.Context, root string, skipHidden bool) ([]entity.Document, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, DirStats{}, err
	}

	var (
		docs  []entity.Document
		stats DirStats
		seen  = map[string]string{}
	)
	fail := func(path string, err error) {
		stats.Failures = append(stats.Failures, FileError{Path: path, Err: err.Error()})
		stats.Failed++
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			fail(path, walkErr)
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		rel, err := filepath.Rel(root, path)
		if err != nil {
			fail(path, err)
			return nil
		}
		doc, err := s.describe(path, filepath.ToSlash(rel))
		if err != nil {
			fail(path, err)
			return nil
		}
		if first, dup := seen[doc.ContentHash]; dup && !s.KeepDuplicates {
			s.logger.Info("duplicate content skipped", "path", path, "same_as", first)
			stats.Deduplicated++
			return nil
		}
		seen[doc.ContentHash] = doc.ID
		docs = append(docs, doc)
		stats.Succeeded++
		return nil
	})
	if err != nil {
		return docs, stats, fmt.Errorf("walk: %w", err)
	}

	s.logger.Info("scan done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"documents", len(docs),
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return docs, stats, nil
}

// sniff prefers the detected media type and falls back to the extension when
// detection is inconclusive.
func (s *Scanner) sniff(path, ext string) string {
	byExt := mediaTypeForExt(ext)
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return byExt
	}
	detected := mt.String()
	if constants.MapMediaTypeToFormat(detected) == "" {
		return byExt
	}
	if byExt != "" && constants.MapMediaTypeToFormat(detected) != constants.MapMediaTypeToFormat(byExt) {
		s.logger.Warn("extension does not match content", "path", path, "ext", ext, "detected", detected)
	}
	return detected
}

func mediaTypeForExt(ext string) string {
	switch constants.NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "tif", "tiff":
		return "image/tiff"
	case "txt":
		return "text/plain"
	default:
		return ""
	}
}

// pageCount reads the page tree with pdfcpu; malformed files can make it panic.
func pageCount(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()
	return api.PageCountFile(path)
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hash: %w", err)
	}
	return h.Sum(nil), nil
}
