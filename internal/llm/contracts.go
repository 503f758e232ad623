package llm

import (
	"context"
	"errors"
)

// ErrNoName means the model answered but gave nothing usable as a name.
var ErrNoName = errors.New("model returned no usable name")

// CompletionRequest is one system + user exchange with a short answer.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Completer is the provider boundary: one synchronous request, one text completion.
//
//go:generate mockgen -source=contracts.go -destination=mocks/mock_completer.go -package=mocks
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a plain function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}
