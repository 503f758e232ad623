package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/llm"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/llm/mocks"
)

func fastRetry() llm.RetryConfig {
	return llm.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func TestExtractName_Answers(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr error
	}{
		{"plain", "Propane", "Propane", nil},
		{"quoted", "\"Propane\"", "Propane", nil},
		{"curly quoted with space", "  “Isopropyl alcohol”\n", "Isopropyl alcohol", nil},
		{"nested quotes", "'\"Acetone\"'", "Acetone", nil},
		{"unknown sentinel", "UNKNOWN", "", llm.ErrNoName},
		{"unknown lower", " unknown ", "", llm.ErrNoName},
		{"empty", "", "", llm.ErrNoName},
		{"single char", "X", "", llm.ErrNoName},
		{"quotes only", "\"\"", "", llm.ErrNoName},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := mocks.NewMockCompleter(ctrl)
			m.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(tc.reply, nil).Times(1)

			x := llm.NewNameExtractor(m, llm.ExtractorConfig{}, nil)
			got, err := x.ExtractName(context.Background(), "Product name: Propane")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractName_RequestShape(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)

	long := strings.Repeat("a", 5000)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		assert.Equal(t, llm.BuildSystemPrompt(), req.System)
		assert.Contains(t, req.User, "…(truncated)")
		assert.NotContains(t, req.User, strings.Repeat("a", 101))
		assert.Equal(t, float32(0), req.Temperature)
		assert.Equal(t, constants.MaxOutputTokens, req.MaxTokens)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "each call carries its own timeout")
		return "Acetone", nil
	})

	x := llm.NewNameExtractor(m, llm.ExtractorConfig{MaxPromptChars: 100}, nil)
	got, err := x.ExtractName(context.Background(), long)
	require.NoError(t, err)
	assert.Equal(t, "Acetone", got)
}

func TestExtractName_RetriesRateLimits(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	gomock.InOrder(
		m.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("", llm.NewAPIError(429, "slow down")),
		m.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("", llm.NewAPIError(503, "")),
		m.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("Toluene", nil),
	)

	x := llm.NewNameExtractor(m, llm.ExtractorConfig{Retry: fastRetry()}, nil)
	got, err := x.ExtractName(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "Toluene", got)
}

func TestExtractName_NoRetryOnClientErrorOrTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("", llm.NewAPIError(401, "bad key")).Times(1)

	x := llm.NewNameExtractor(m, llm.ExtractorConfig{Retry: fastRetry()}, nil)
	_, err := x.ExtractName(context.Background(), "text")
	require.Error(t, err)
	assert.NotErrorIs(t, err, llm.ErrNoName)

	m2 := mocks.NewMockCompleter(ctrl)
	m2.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ llm.CompletionRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}).Times(1)

	x = llm.NewNameExtractor(m2, llm.ExtractorConfig{Timeout: 10 * time.Millisecond, Retry: fastRetry()}, nil)
	_, err = x.ExtractName(context.Background(), "text")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractName_NilCompleter(t *testing.T) {
	x := llm.NewNameExtractor(nil, llm.ExtractorConfig{}, nil)
	_, err := x.ExtractName(context.Background(), "text")
	assert.Error(t, err)
}

func TestWithRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := llm.WithRetry(ctx, llm.RetryConfig{MaxRetries: 5, InitialDelay: time.Hour, BackoffFactor: 1}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, llm.NewAPIError(500, "")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_GivesUpAfterMax(t *testing.T) {
	calls := 0
	want := llm.NewAPIError(502, "")
	_, err := llm.WithRetry(context.Background(), fastRetry(), func(context.Context) (string, error) {
		calls++
		return "", want
	})
	assert.True(t, errors.Is(err, want))
	assert.Equal(t, 3, calls)
}

func TestBuildUserPrompt(t *testing.T) {
	assert.Equal(t, "Document text:\nshort\n\nProduct name:", llm.BuildUserPrompt("  short  ", 3000))

	p := llm.BuildUserPrompt(strings.Repeat("ø", 20), 10)
	assert.Equal(t, "Document text:\n"+strings.Repeat("ø", 10)+"\n…(truncated)\n\nProduct name:", p)

	assert.Contains(t, llm.BuildSystemPrompt(), constants.UnknownSentinel)
}

func TestCleanAnswerAndUsable(t *testing.T) {
	assert.Equal(t, "WD-40", llm.CleanAnswer(" `WD-40` "))
	assert.True(t, llm.Usable("Ar"))
	assert.False(t, llm.Usable("A"))
	assert.False(t, llm.Usable("Unknown"))
	assert.False(t, llm.Usable("unknown."))
	assert.False(t, llm.Usable("N/A"))
	assert.False(t, llm.Usable("???"))
	assert.True(t, llm.Usable("WD-40!"))
}
