package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
)

const quoteChars = "\"'`“”‘’«»„"

type ExtractorConfig struct {
	MaxPromptChars  int     // default constants.MaxPromptChars
	MaxOutputTokens int     // default constants.MaxOutputTokens
	Temperature     float32 // 0 keeps sampling deterministic
	Timeout         time.Duration
	Retry           RetryConfig
}

// NameExtractor asks a model for the product name in a block of document text.
type NameExtractor struct {
	completer Completer
	cfg       ExtractorConfig
	logger    *slog.Logger
}

var errNoCompleter = errors.New("no model provider configured")

func NewNameExtractor(c Completer, cfg ExtractorConfig, logger *slog.Logger) *NameExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = constants.MaxPromptChars
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = constants.MaxOutputTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &NameExtractor{completer: c, cfg: cfg, logger: logger}
}

// ExtractName makes one model request (plus retries on rate limits and server errors)
// and returns the cleaned answer. Any answer that is empty, the unknown sentinel or
// shorter than two characters yields ErrNoName.
func (x *NameExtractor) ExtractName(ctx context.Context, text string) (string, error) {
	if x.completer == nil {
		return "", errNoCompleter
	}
	start := time.Now()
	req := CompletionRequest{
		System:      BuildSystemPrompt(),
		User:        BuildUserPrompt(text, x.cfg.MaxPromptChars),
		Temperature: x.cfg.Temperature,
		MaxTokens:   x.cfg.MaxOutputTokens,
	}

	raw, err := WithRetry(ctx, x.cfg.Retry, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, x.cfg.Timeout)
		defer cancel()
		return x.completer.Complete(callCtx, req)
	})
	if err != nil {
		x.logger.Warn("llm.name.call_failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("model call: %w", err)
	}

	name := CleanAnswer(raw)
	if !Usable(name) {
		x.logger.Info("llm.name.no_name", "raw", truncateRunes(raw, 80), "elapsed_ms", time.Since(start).Milliseconds())
		return "", ErrNoName
	}
	x.logger.Info("llm.name.ok", "name", name, "elapsed_ms", time.Since(start).Milliseconds())
	return name, nil
}

// CleanAnswer trims whitespace and surrounding quote characters.
func CleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	for {
		t := strings.TrimSpace(strings.Trim(s, quoteChars))
		if t == s {
			return s
		}
		s = t
	}
}

// declined holds answers, compared without trailing punctuation, that mean "no name".
var declined = map[string]struct{}{
	constants.UnknownSentinel: {},
	"N/A":                     {},
	"NA":                      {},
	"NONE":                    {},
}

// Usable reports whether a cleaned answer can be used as a name.
func Usable(name string) bool {
	bare := strings.TrimRightFunc(name, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSpace(r) })
	if _, ok := declined[strings.ToUpper(bare)]; ok {
		return false
	}
	if strings.IndexFunc(bare, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
		return false
	}
	return utf8.RuneCountInString(bare) >= 2
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return cutRunes(s, n) + "…"
}
