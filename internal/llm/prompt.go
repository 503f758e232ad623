package llm

import (
	"strings"
	"unicode/utf8"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
)

const truncationMarker = "\n…(truncated)"

// BuildSystemPrompt is the fixed instruction sent with every naming request.
func BuildSystemPrompt() string {
	parts := []string{
		"You read safety data sheets (SDS, sikkerhetsdatablad) in English or Norwegian.",
		"Identify the chemical or product the document describes, as given under section 1 (identification / product identifier / handelsnavn).",
		"Reply with the product or chemical name only: no explanation, no CAS number, no quotes, no trailing punctuation.",
		"Prefer the trade name over the supplier name.",
		"If the text does not identify a product, reply exactly " + constants.UnknownSentinel + ".",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt wraps document text, cut to maxChars runes with a marker when cut.
func BuildUserPrompt(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = constants.MaxPromptChars
	}
	text = strings.TrimSpace(text)

	var b strings.Builder
	b.WriteString("Document text:\n")
	if utf8.RuneCountInString(text) > maxChars {
		b.WriteString(cutRunes(text, maxChars))
		b.WriteString(truncationMarker)
	} else {
		b.WriteString(text)
	}
	b.WriteString("\n\nProduct name:")
	return b.String()
}

func cutRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
