package pipeline

import "github.com/andydreyson/v0-safetydatas-sub001/constants"

// Config holds the orchestrator thresholds and which fallbacks run.
// Lengths are rune counts of the trimmed text.
type Config struct {
	MinTextChars   int // below this the text layer is considered missing and OCR runs
	MinUsableChars int // below this, after OCR, the run ends with no result

	SkipOCR      bool
	SkipPatterns bool
	SkipModel    bool
}

// DefaultConfig runs every stage.
func DefaultConfig() Config {
	return Config{
		MinTextChars:   constants.MinTextChars,
		MinUsableChars: constants.MinUsableChars,
	}
}

// ModelOnlyConfig is the lean variant: text layer straight to the model, no OCR, no rules.
func ModelOnlyConfig() Config {
	return Config{
		MinTextChars:   constants.MinTextChars,
		MinUsableChars: constants.MinUsableChars,
		SkipOCR:        true,
		SkipPatterns:   true,
	}
}

func (c Config) withDefaults() Config {
	if c.MinTextChars <= 0 {
		c.MinTextChars = constants.MinTextChars
	}
	if c.MinUsableChars <= 0 {
		c.MinUsableChars = constants.MinUsableChars
	}
	return c
}
