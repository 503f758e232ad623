package constants

import "strings"

// Format is the coarse document family the extractors dispatch on.
type Format string

const (
	PDF   Format = "PDF"
	IMAGE Format = "IMAGE"
	TEXT  Format = "TEXT"
)

// AllowedExtensions holds the file extensions picked up by directory ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"txt":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// MapExtToFormat maps a file extension (with or without dot) to a Format.
// Unknown extensions map to "".
func MapExtToFormat(ext string) Format {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "tif", "tiff", "bmp", "gif", "webp":
		return IMAGE
	case "txt", "text":
		return TEXT
	default:
		return ""
	}
}

// MapMediaTypeToFormat maps a declared media type such as "application/pdf".
// Parameters ("; charset=utf-8") are ignored.
func MapMediaTypeToFormat(mediaType string) Format {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case mt == "application/pdf" || mt == "application/x-pdf":
		return PDF
	case strings.HasPrefix(mt, "image/"):
		return IMAGE
	case strings.HasPrefix(mt, "text/"):
		return TEXT
	default:
		return ""
	}
}
