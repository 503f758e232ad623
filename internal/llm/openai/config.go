package openai

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// ErrMissingAPIKey is returned by Complete, without any network call, when no key is configured.
var ErrMissingAPIKey = errors.New("openai: missing API key")

// Config for the OpenAI client.
type Config struct {
	APIKey  string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL string        // default https://api.openai.com/v1
	Model   string        // e.g., "gpt-4o-mini"
	Timeout time.Duration // http client timeout
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Model returns the configured model id.
func (c *Client) Model() string { return c.cfg.Model }
