package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// APIError is a non-2xx answer from a model provider.
type APIError struct {
	StatusCode int
	Body       string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("model api status %d", e.StatusCode)
	}
	return fmt.Sprintf("model api status %d: %s", e.StatusCode, e.Body)
}

// NewAPIError marks rate limits and server errors as retryable.
func NewAPIError(status int, body string) *APIError {
	return &APIError{
		StatusCode: status,
		Body:       body,
		Retryable:  status == http.StatusTooManyRequests || status >= 500,
	}
}

// RetryConfig configures exponential backoff.
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	JitterFraction float64 // 0.0 to 1.0
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		BackoffFactor:  2.0,
		JitterFraction: 0.2,
	}
}

// IsRetryable reports whether err is worth another attempt. Only provider
// errors flagged retryable qualify; timeouts and transport errors do not.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable
}

// WithRetry calls fn until it succeeds, returns a non-retryable error, or runs out of attempts.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var lastErr error
	var zero T

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt >= cfg.MaxRetries {
			break
		}

		delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
		if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
		}
		if cfg.JitterFraction > 0 {
			delay += delay * cfg.JitterFraction * (rand.Float64()*2 - 1)
			if delay < 0 {
				delay = float64(cfg.InitialDelay)
			}
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(time.Duration(delay)):
		}
	}

	return zero, lastErr
}
