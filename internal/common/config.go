package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Pipeline  PipelineConfig
	OCR       OCRConfig
	LLM       LLMConfig
	Batch     BatchConfig
	RulesFile string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds daemon-related configuration
type ServerConfig struct {
	HealthAddr string
	WatchDirs  []string
}

type PipelineConfig struct {
	MinTextChars   int
	MinUsableChars int
	MaxPages       int
	SkipOCR        bool
	SkipPatterns   bool
	SkipModel      bool
}

// OCRConfig holds external tool configuration
type OCRConfig struct {
	Tesseract   string
	Pdftoppm    string
	Pdftotext   string
	Languages   string
	DPI         int
	TessdataDir string
	Timeout     time.Duration
}

// LLMConfig holds model provider configuration
type LLMConfig struct {
	Provider       string // "openai" (built-in client), "anthropic" or "ollama" (langchaingo)
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float32
	Timeout        time.Duration
	MaxRetries     int
	MaxPromptChars int
}

type BatchConfig struct {
	Delay      time.Duration
	Workers    int
	DocTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HealthAddr: getEnv("HEALTH_ADDR", ":8080"),
			WatchDirs:  getEnvAsList("WATCH_DIRS"),
		},
		Pipeline: PipelineConfig{
			MinTextChars:   getEnvAsInt("PIPELINE_MIN_TEXT_CHARS", 30),
			MinUsableChars: getEnvAsInt("PIPELINE_MIN_USABLE_CHARS", 10),
			MaxPages:       getEnvAsInt("PIPELINE_MAX_PAGES", 1),
			SkipOCR:        getEnvAsBool("PIPELINE_SKIP_OCR", false),
			SkipPatterns:   getEnvAsBool("PIPELINE_SKIP_PATTERNS", false),
			SkipModel:      getEnvAsBool("PIPELINE_SKIP_MODEL", false),
		},
		OCR: OCRConfig{
			Tesseract:   getEnv("TESSERACT", "tesseract"),
			Pdftoppm:    getEnv("PDFTOPPM", "pdftoppm"),
			Pdftotext:   getEnv("PDFTOTEXT", "pdftotext"),
			Languages:   getEnv("OCR_LANGS", "eng+nor"),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			Timeout:     getEnvAsDuration("OCR_TIMEOUT", 60*time.Second),
		},
		LLM: LLMConfig{
			Provider:       strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:         getEnv("LLM_API_KEY", getEnv("OPENAI_API_KEY", "")),
			BaseURL:        getEnv("OPENAI_BASE_URL", ""),
			Temperature:    getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:        getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			MaxRetries:     getEnvAsInt("LLM_MAX_RETRIES", 2),
			MaxPromptChars: getEnvAsInt("LLM_MAX_PROMPT_CHARS", 4000),
		},
		Batch: BatchConfig{
			Delay:      getEnvAsDuration("BATCH_DELAY", 50*time.Millisecond),
			Workers:    getEnvAsInt("BATCH_WORKERS", 1),
			DocTimeout: getEnvAsDuration("BATCH_DOC_TIMEOUT", 3*time.Minute),
		},
		RulesFile: getEnv("RULES_FILE", ""),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the loaded configuration. Model credentials are checked only when
// the model stage is enabled and the provider needs a key.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("PIPELINE_MIN_TEXT_CHARS", c.Pipeline.MinTextChars, NonNegative)
	v.Field("PIPELINE_MIN_USABLE_CHARS", c.Pipeline.MinUsableChars, NonNegative)
	v.Field("PIPELINE_MAX_PAGES", c.Pipeline.MaxPages, Positive)
	v.Field("OCR_DPI", c.OCR.DPI, Positive)
	v.Field("BATCH_WORKERS", c.Batch.Workers, Positive)
	v.Field("LLM_MAX_RETRIES", c.LLM.MaxRetries, NonNegative)
	if c.Pipeline.MinUsableChars > c.Pipeline.MinTextChars {
		v.Field("PIPELINE_MIN_USABLE_CHARS", c.Pipeline.MinUsableChars, func(field string, value interface{}) *ValidationError {
			return &ValidationError{Field: field, Value: value, Message: "must not exceed PIPELINE_MIN_TEXT_CHARS"}
		})
	}
	if !c.Pipeline.SkipModel {
		v.Field("LLM_PROVIDER", c.LLM.Provider, OneOf("openai", "anthropic", "ollama"))
		switch c.LLM.Provider {
		case "openai":
			v.Field("OPENAI_API_KEY", c.LLM.APIKey, Required)
		case "anthropic":
			v.Field("ANTHROPIC_API_KEY", os.Getenv("ANTHROPIC_API_KEY"), Required)
		}
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
