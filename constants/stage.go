package constants

import "time"

// Stage identifies a state of the extraction state machine.
type Stage string

const (
	StageStart          Stage = "START"
	StageTextExtracted  Stage = "TEXT_EXTRACTED"
	StageOCRFallback    Stage = "OCR_FALLBACK"
	StagePatternChecked Stage = "PATTERN_CHECKED"
	StageModelFallback  Stage = "MODEL_FALLBACK"
	StageSanitized      Stage = "SANITIZED"
	StageDone           Stage = "DONE"
	StageFailed         Stage = "FAILED"
)

// Status is the outcome of one pipeline run.
type Status string

// Stable values (stored as-is in extraction_run.status).
const (
	StatusFound    Status = "FOUND"     // sanitized name produced
	StatusNoResult Status = "NO_RESULT" // expected: nothing usable in the document
	StatusFailed   Status = "FAILED"    // unexpected failure, still reported as "could not extract"
)

// Methods record which strategy produced the text or the name.
const (
	MethodTextLayer = "text-layer"
	MethodPDFToText = "pdftotext"
	MethodOCR       = "ocr"
	MethodPattern   = "pattern"
	MethodModel     = "model"
)

const (
	MinTextChars    = 30 // below this the text layer is considered absent -> OCR
	MinUsableChars  = 10 // below this nothing downstream is attempted
	DefaultMaxPages = 1

	MaxPromptChars  = 4000
	MaxOutputTokens = 50

	MaxNameLength   = 100
	FallbackName    = "Unknown"
	UnknownSentinel = "UNKNOWN"

	DefaultOCRLanguages = "eng+nor"
	DefaultBatchDelay   = 50 * time.Millisecond
)
