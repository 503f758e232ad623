package entity

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
)

// ErrNoContent is returned by Open when a document has neither a path nor bytes.
var ErrNoContent = errors.New("document has no path and no data")

// Document is a source document handed to the pipeline by the caller.
// The pipeline only reads it; Path and Data are alternatives (Path wins when both are set).
type Document struct {
	ID          string `json:"id"`
	Path        string `json:"path,omitempty"`
	Data        []byte `json:"-"`
	MediaType   string `json:"media_type,omitempty"`
	Name        string `json:"name,omitempty"` // original display name
	ContentHash string `json:"content_hash,omitempty"`
	Pages       int    `json:"pages,omitempty"`
}

// Format resolves the declared media type, falling back to the extension of Path or Name.
func (d Document) Format() constants.Format {
	if f := constants.MapMediaTypeToFormat(d.MediaType); f != "" {
		return f
	}
	if d.Path != "" {
		if f := constants.MapExtToFormat(filepath.Ext(d.Path)); f != "" {
			return f
		}
	}
	return constants.MapExtToFormat(filepath.Ext(d.Name))
}

// DisplayName returns Name, or the base of Path, or the ID.
func (d Document) DisplayName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Path != "":
		return filepath.Base(d.Path)
	default:
		return d.ID
	}
}

// Open returns random access to the document content. Call the returned close func when done.
func (d Document) Open() (io.ReaderAt, int64, func() error, error) {
	if d.Path != "" {
		f, err := os.Open(d.Path)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("open document: %w", err)
		}
		st, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, 0, nil, fmt.Errorf("stat document: %w", err)
		}
		return f, st.Size(), f.Close, nil
	}
	if len(d.Data) > 0 {
		return bytes.NewReader(d.Data), int64(len(d.Data)), func() error { return nil }, nil
	}
	return nil, 0, nil, ErrNoContent
}

// LocalPath returns a filesystem path for tools that need one. Byte-only documents are
// spooled to a temp file that cleanup removes; cleanup is always non-nil.
func (d Document) LocalPath(pattern string) (path string, cleanup func(), err error) {
	if d.Path != "" {
		return d.Path, func() {}, nil
	}
	if len(d.Data) == 0 {
		return "", func() {}, ErrNoContent
	}
	ext := filepath.Ext(d.Name)
	if ext == "" {
		switch d.Format() {
		case constants.PDF:
			ext = ".pdf"
		case constants.IMAGE:
			ext = ".png"
		}
	}
	f, err := os.CreateTemp("", pattern+ext)
	if err != nil {
		return "", func() {}, err
	}
	cleanup = func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(d.Data); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return f.Name(), cleanup, nil
}

// Attempt is what one stage produced during a single pipeline run. Never persisted.
type Attempt struct {
	Stage     constants.Stage `json:"stage"`
	Method    string          `json:"method,omitempty"`
	Text      string          `json:"-"`
	TextLen   int             `json:"text_len"`
	Candidate string          `json:"candidate,omitempty"`
}
