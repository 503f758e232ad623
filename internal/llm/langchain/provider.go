// Package langchain adapts langchaingo models to llm.Completer so the naming
// stage can run against Anthropic, Ollama or any OpenAI-compatible endpoint.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/andydreyson/v0-safetydatas-sub001/internal/llm"
)

var ErrUnknownProvider = errors.New("unknown llm provider")

type Config struct {
	Provider string // "openai", "anthropic" or "ollama"
	Model    string
	APIKey   string // falls back to OPENAI_API_KEY / ANTHROPIC_API_KEY
	BaseURL  string // OpenAI-compatible base URL or Ollama host
}

type Completer struct {
	model  llms.Model
	name   string
	logger *slog.Logger
}

var _ llm.Completer = (*Completer)(nil)

// New builds the langchaingo model named by cfg.Provider.
func New(cfg Config, logger *slog.Logger) (*Completer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	model, err := createModel(cfg)
	if err != nil {
		return nil, err
	}
	return &Completer{model: model, name: cfg.Provider + ":" + cfg.Model, logger: logger}, nil
}

// Wrap adapts an existing llms.Model.
func Wrap(model llms.Model, name string, logger *slog.Logger) *Completer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Completer{model: model, name: name, logger: logger}
}

func (c *Completer) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	start := time.Now()

	msgs := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, req.System),
		llms.TextParts(schema.ChatMessageTypeHuman, req.User),
	}
	opts := []llms.CallOption{llms.WithTemperature(float64(req.Temperature))}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		c.logger.Warn("llm.langchain.error", "model", c.name, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response", c.name)
	}

	content := strings.TrimSpace(resp.Choices[0].Content)
	c.logger.Debug("llm.langchain.ok", "model", c.name, "chars", len(content), "elapsed_ms", time.Since(start).Milliseconds())
	return content, nil
}

func createModel(cfg Config) (llms.Model, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("OpenAI API key is not set")
		}
		opts := []openai.Option{openai.WithToken(key)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "anthropic":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("Anthropic API key is not set")
		}
		opts := []anthropic.Option{anthropic.WithToken(key)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		return anthropic.New(opts...)
	case "ollama":
		host := firstNonEmpty(cfg.BaseURL, os.Getenv("OLLAMA_HOST"), "http://127.0.0.1:11434")
		opts := []ollama.Option{ollama.WithServerURL(host)}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Model))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
