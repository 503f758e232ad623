package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/andydreyson/v0-safetydatas-sub001/internal/common"
)

const maxErrorBody = 2 << 10

// SendJSON posts a JSON body to a full URL with optional headers and returns the raw response body.
// Non-2xx answers come back as *APIError. It does not assume any provider; callers decide the URL and headers.
func SendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}

	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		logger.Error("llm.http.encode_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		logger.Error("llm.http.build_request_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Debug("llm.http.request",
		"req_id", reqID,
		"url", url,
		"content_length", len(bs),
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("llm.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("llm.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	logger.Info("llm.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return nil, NewAPIError(resp.StatusCode, string(raw))
	}
	return raw, nil
}
