// Package pipeline runs the naming state machine for one document:
// text layer, OCR fallback, pattern rules, model fallback, sanitize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/naming"
)

// ErrStagePanic wraps a panic recovered from a stage.
var ErrStagePanic = errors.New("stage panicked")

type Orchestrator struct {
	cfg     Config
	text    TextExtractor
	ocr     Recognizer
	matcher PatternMatcher
	model   NameExtractor
	logger  *slog.Logger
}

// New wires the stages. A nil stage is treated as disabled; a nil matcher gets the built-in rules.
func New(cfg Config, text TextExtractor, ocr Recognizer, matcher PatternMatcher, model NameExtractor, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if matcher == nil {
		matcher = naming.DefaultMatcher()
	}
	return &Orchestrator{
		cfg:     cfg.withDefaults(),
		text:    text,
		ocr:     ocr,
		matcher: matcher,
		model:   model,
		logger:  logger,
	}
}

// Run never returns an error and never panics: every outcome, including stage
// panics and cancellation, is encoded in the Result.
func (o *Orchestrator) Run(ctx context.Context, doc entity.Document) (res Result) {
	start := time.Now()
	res = Result{DocumentID: doc.ID, Stage: constants.StageStart}

	defer func() {
		if r := recover(); r != nil {
			res = o.failed(res, fmt.Errorf("%w in %s: %v", ErrStagePanic, res.Stage, r))
		}
		res.Duration = time.Since(start)
		o.logger.Info("pipeline.done",
			"doc_id", doc.ID,
			"status", res.Status,
			"stage", res.Stage,
			"method", res.Method,
			"name", res.Name,
			"attempts", len(res.Attempts),
			"elapsed_ms", res.Duration.Milliseconds(),
		)
	}()

	if err := ctx.Err(); err != nil {
		return o.failed(res, err)
	}

	// text layer
	res.Stage = constants.StageTextExtracted
	text := ""
	if o.text != nil {
		tr := o.text.Extract(ctx, doc)
		text, res.Method = tr.Text, tr.Method
		res.Attempts = append(res.Attempts, attempt(constants.StageTextExtracted, tr.Method, tr.Text, ""))
		if tr.Err != nil {
			o.logger.Debug("pipeline.text_layer_error", "doc_id", doc.ID, "error", tr.Err)
		}
	}

	// OCR when the text layer is missing or too thin
	if textLen(text) < o.cfg.MinTextChars && !o.cfg.SkipOCR && o.ocr != nil {
		if err := ctx.Err(); err != nil {
			return o.failed(res, err)
		}
		res.Stage = constants.StageOCRFallback
		or := o.ocr.Recognize(ctx, doc)
		res.Attempts = append(res.Attempts, attempt(constants.StageOCRFallback, constants.MethodOCR, or.Text, ""))
		if textLen(or.Text) > textLen(text) {
			text, res.Method = or.Text, constants.MethodOCR
		}
	}

	if textLen(text) < o.cfg.MinUsableChars {
		o.logger.Debug("pipeline.too_little_text", "doc_id", doc.ID, "chars", textLen(text))
		return o.noResult(res, nil)
	}

	if !o.cfg.SkipPatterns {
		res.Stage = constants.StagePatternChecked
		rule, ok := o.matcher.Match(text)
		res.Attempts = append(res.Attempts, attempt(constants.StagePatternChecked, constants.MethodPattern, "", rule.Name))
		if ok {
			return o.found(res, rule.Name, constants.MethodPattern)
		}
	}

	if o.cfg.SkipModel || o.model == nil {
		return o.noResult(res, nil)
	}
	if err := ctx.Err(); err != nil {
		return o.failed(res, err)
	}

	res.Stage = constants.StageModelFallback
	candidate, err := o.model.ExtractName(ctx, text)
	res.Attempts = append(res.Attempts, attempt(constants.StageModelFallback, constants.MethodModel, "", candidate))
	if err != nil {
		// the run's own context ending is a failure; the model declining is not
		if ctxErr := ctx.Err(); ctxErr != nil {
			return o.failed(res, ctxErr)
		}
		return o.noResult(res, err)
	}
	if strings.TrimSpace(candidate) == "" || naming.Sanitize(candidate) == constants.FallbackName {
		return o.noResult(res, nil)
	}
	return o.found(res, candidate, constants.MethodModel)
}

func (o *Orchestrator) found(res Result, candidate, method string) Result {
	res.Name = naming.Sanitize(candidate)
	res.Method = method
	res.Attempts = append(res.Attempts, attempt(constants.StageSanitized, method, "", res.Name))
	res.Status = constants.StatusFound
	res.Stage = constants.StageDone
	return res
}

func (o *Orchestrator) noResult(res Result, err error) Result {
	res.Name = ""
	res.Status = constants.StatusNoResult
	res.Stage = constants.StageDone
	res.Err = err
	return res
}

func (o *Orchestrator) failed(res Result, err error) Result {
	res.FailedAt = res.Stage
	res.Name = ""
	res.Status = constants.StatusFailed
	res.Stage = constants.StageFailed
	res.Err = err
	o.logger.Warn("pipeline.failed", "doc_id", res.DocumentID, "stage", res.FailedAt, "error", err)
	return res
}

func attempt(stage constants.Stage, method, text, candidate string) entity.Attempt {
	return entity.Attempt{
		Stage:     stage,
		Method:    method,
		Text:      text,
		TextLen:   textLen(text),
		Candidate: candidate,
	}
}

func textLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
