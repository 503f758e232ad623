package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/andydreyson/v0-safetydatas-sub001/internal/llm"
)

var _ llm.Completer = (*Client)(nil)

// Complete implements llm.Completer using text-only chat/completions.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", ErrMissingAPIKey
	}
	start := time.Now()

	c.logger.Debug("llm.complete.start",
		"model", c.cfg.Model,
		"temp", req.Temperature,
		"max_tokens", req.MaxTokens,
		"user_len", len(req.User),
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": req.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.complete.decode_error",
			"error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Debug("llm.complete.ok",
		"chars", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}
