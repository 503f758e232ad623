package pipeline

import (
	"context"

	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/naming"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/ocr"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/textlayer"
)

// TextExtractor reads a document's embedded text. Implemented by *textlayer.Extractor.
type TextExtractor interface {
	Extract(ctx context.Context, doc entity.Document) textlayer.Result
}

// Recognizer OCRs a document. Implemented by *ocr.Extractor.
type Recognizer interface {
	Recognize(ctx context.Context, doc entity.Document) ocr.Result
}

// PatternMatcher is implemented by *naming.Matcher.
type PatternMatcher interface {
	Match(text string) (naming.Rule, bool)
}

// NameExtractor is implemented by *llm.NameExtractor.
type NameExtractor interface {
	ExtractName(ctx context.Context, text string) (string, error)
}

type TextExtractorFunc func(ctx context.Context, doc entity.Document) textlayer.Result

func (f TextExtractorFunc) Extract(ctx context.Context, doc entity.Document) textlayer.Result {
	return f(ctx, doc)
}

type RecognizerFunc func(ctx context.Context, doc entity.Document) ocr.Result

func (f RecognizerFunc) Recognize(ctx context.Context, doc entity.Document) ocr.Result {
	return f(ctx, doc)
}

type NameExtractorFunc func(ctx context.Context, text string) (string, error)

func (f NameExtractorFunc) ExtractName(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}
