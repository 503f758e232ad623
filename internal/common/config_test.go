package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"LLM_PROVIDER", "LLM_API_KEY", "OPENAI_API_KEY", "OCR_LANGS", "BATCH_DELAY", "WATCH_DIRS", "PIPELINE_SKIP_OCR"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()

	assert.Equal(t, 30, cfg.Pipeline.MinTextChars)
	assert.Equal(t, 10, cfg.Pipeline.MinUsableChars)
	assert.Equal(t, 1, cfg.Pipeline.MaxPages)
	assert.Equal(t, "eng+nor", cfg.OCR.Languages)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 50*time.Millisecond, cfg.Batch.Delay)
	assert.Empty(t, cfg.Server.WatchDirs)
	assert.False(t, cfg.Pipeline.SkipOCR)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Ollama")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("PIPELINE_SKIP_OCR", "true")
	t.Setenv("BATCH_DELAY", "250ms")
	t.Setenv("BATCH_WORKERS", "nope")
	t.Setenv("WATCH_DIRS", " /in/a, ,/in/b ")
	t.Setenv("OPENAI_TEMPERATURE", "0.2")

	cfg := LoadConfig()
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.True(t, cfg.Pipeline.SkipOCR)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.Delay)
	assert.Equal(t, 1, cfg.Batch.Workers, "unparsable values keep the default")
	assert.Equal(t, []string{"/in/a", "/in/b"}, cfg.Server.WatchDirs)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)

	t.Setenv("LLM_API_KEY", "sk-llm")
	assert.Equal(t, "sk-llm", LoadConfig().LLM.APIKey)
}

func TestValidate(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	base := func() *Config {
		return &Config{
			Pipeline: PipelineConfig{MinTextChars: 30, MinUsableChars: 10, MaxPages: 1},
			OCR:      OCRConfig{DPI: 300},
			LLM:      LLMConfig{Provider: "openai", APIKey: "sk-test", MaxRetries: 2},
			Batch:    BatchConfig{Workers: 1},
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.LLM.APIKey = ""
	err := c.Validate()
	require.Error(t, err)
	assert.Equal(t, "CONFIG_ERROR", ErrorCode(err))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	c.Pipeline.SkipModel = true
	assert.NoError(t, c.Validate(), "no key needed without the model stage")

	c = base()
	c.LLM.Provider, c.LLM.APIKey = "ollama", ""
	assert.NoError(t, c.Validate())

	c.LLM.Provider = "anthropic"
	assert.Error(t, c.Validate())

	c.LLM.Provider = "cohere"
	assert.Contains(t, c.Validate().Error(), "LLM_PROVIDER")

	c = base()
	c.Pipeline.MinUsableChars = 40
	c.Batch.Workers = 0
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PIPELINE_MIN_USABLE_CHARS")
	assert.Contains(t, err.Error(), "BATCH_WORKERS")
}

func TestValidatorRules(t *testing.T) {
	v := NewValidator().
		Field("name", "  ", Required).
		Field("id", "not-a-uuid", UUID).
		Field("label", "abcdef", MaxLength(3)).
		Field("count", -1, NonNegative, Positive)
	assert.Len(t, v.Errors(), 5)
	assert.Error(t, v.Error())

	err := Validate(v)
	assert.Equal(t, "VALIDATION_ERROR", ErrorCode(err))
	assert.ErrorIs(t, err, ErrValidation)

	ok := NewValidator().Field("name", "Propane", Required, MaxLength(100)).Field("n", int32(2), Positive)
	assert.NoError(t, ok.Error())
	assert.NoError(t, Validate(ok))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitUsage, ExitCode(NewAppError("CONFIG_ERROR", "bad", nil)))
	assert.Equal(t, ExitUsage, ExitCode(fmt.Errorf("flag: %w", ErrInvalidInput)))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))

	assert.Nil(t, WrapError(nil, "ctx"))
	assert.EqualError(t, WrapError(errors.New("boom"), "load"), "load: boom")
}

func TestContextHelpers(t *testing.T) {
	ctx := WithRequestID(context.Background(), "batch/doc-1")
	assert.Equal(t, "batch/doc-1", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))

	same, cancel := WithTimeout(ctx, 0)
	cancel()
	assert.Equal(t, ctx, same)

	bounded, cancel := WithTimeout(ctx, time.Minute)
	defer cancel()
	_, ok := bounded.Deadline()
	assert.True(t, ok)
}
