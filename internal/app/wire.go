// Package app wires configuration into the pipeline, model client and run store
// shared by the binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/andydreyson/v0-safetydatas-sub001/internal/common"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/llm"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/llm/langchain"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/llm/openai"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/naming"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/ocr"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/pipeline"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/repository"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/textlayer"
)

// simplePromptChars is the larger prompt budget of the model-only variant.
const simplePromptChars = 6000

// NewLogger returns a JSON logger at the given level ("debug", "info", "warn", "error").
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// NewCompleter builds the model client for cfg.Provider.
func NewCompleter(cfg common.LLMConfig, logger *slog.Logger) (llm.Completer, error) {
	switch cfg.Provider {
	case "", "openai":
		return openai.NewClient(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}, logger), nil
	case "anthropic", "ollama":
		model := cfg.Model
		if strings.HasPrefix(model, "gpt-") {
			// the OpenAI default model name means nothing to other providers
			model = ""
		}
		key := cfg.APIKey
		if cfg.Provider == "anthropic" {
			// APIKey may hold the OpenAI fallback; langchain reads ANTHROPIC_API_KEY
			key = ""
		}
		return langchain.New(langchain.Config{
			Provider: cfg.Provider,
			Model:    model,
			APIKey:   key,
			BaseURL:  cfg.BaseURL,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: %q", langchain.ErrUnknownProvider, cfg.Provider)
	}
}

// Options tweak NewPipeline for a binary's flags.
type Options struct {
	Simple   bool // text layer straight to the model
	NoModel  bool
	MaxPages int
}

// NewPipeline builds an orchestrator. A model client that cannot be built is logged
// and the model stage is left out, so documents degrade to no result.
func NewPipeline(cfg *common.Config, opts Options, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	maxPages := cfg.Pipeline.MaxPages
	if opts.MaxPages > 0 {
		maxPages = opts.MaxPages
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.SkipOCR, pcfg.SkipPatterns = cfg.Pipeline.SkipOCR, cfg.Pipeline.SkipPatterns
	promptChars := cfg.LLM.MaxPromptChars
	if opts.Simple {
		pcfg = pipeline.ModelOnlyConfig()
		if promptChars < simplePromptChars {
			promptChars = simplePromptChars
		}
	}
	if cfg.Pipeline.MinTextChars > 0 {
		pcfg.MinTextChars = cfg.Pipeline.MinTextChars
	}
	if cfg.Pipeline.MinUsableChars > 0 {
		pcfg.MinUsableChars = cfg.Pipeline.MinUsableChars
	}
	pcfg.SkipModel = cfg.Pipeline.SkipModel || opts.NoModel

	text, recognizer := NewTextSources(cfg.OCR, maxPages, logger)

	rules := naming.DefaultRules()
	if cfg.RulesFile != "" {
		loaded, err := naming.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, common.NewAppError("CONFIG_ERROR", "RULES_FILE", err)
		}
		logger.Info("loaded custom rules", "path", cfg.RulesFile, "rules", len(loaded)-len(rules))
		rules = loaded
	}

	var model pipeline.NameExtractor
	if !pcfg.SkipModel {
		c, err := NewCompleter(cfg.LLM, logger)
		if err != nil {
			logger.Warn("model provider unavailable, model stage disabled", "provider", cfg.LLM.Provider, "error", err)
		} else {
			retry := llm.DefaultRetryConfig()
			retry.MaxRetries = cfg.LLM.MaxRetries
			model = llm.NewNameExtractor(c, llm.ExtractorConfig{
				MaxPromptChars: promptChars,
				Temperature:    cfg.LLM.Temperature,
				Timeout:        cfg.LLM.Timeout,
				Retry:          retry,
			}, logger)
		}
	}

	return pipeline.New(pcfg, text, recognizer, naming.NewMatcher(rules), model, logger), nil
}

// NewTextSources builds the text layer reader and the OCR recognizer on one command runner.
func NewTextSources(cfg common.OCRConfig, maxPages int, logger *slog.Logger) (*textlayer.Extractor, *ocr.Extractor) {
	if logger == nil {
		logger = slog.Default()
	}
	runner := ocr.NewExecRunner(logger)
	text := textlayer.NewExtractorWithRunner(textlayer.Config{
		MaxPages:  maxPages,
		Pdftotext: cfg.Pdftotext,
	}, runner, logger)
	recognizer := ocr.NewExtractorWithRunner(ocr.Config{
		Pdftoppm:    cfg.Pdftoppm,
		Tesseract:   cfg.Tesseract,
		Languages:   cfg.Languages,
		DPI:         cfg.DPI,
		MaxPages:    maxPages,
		TessdataDir: cfg.TessdataDir,
		Timeout:     cfg.Timeout,
	}, runner, logger)
	return text, recognizer
}

// OpenStore connects to cfg.DSN and migrates the runs table.
func OpenStore(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repository.RunStore, func(), error) {
	drv, closeFn, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.DSN,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, nil, common.WrapError(err, "open database")
	}
	store := repository.NewRunStore(drv, logger)
	if err := store.Migrate(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}
