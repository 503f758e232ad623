package naming

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
)

var reSpaceRun = regexp.MustCompile(` +`)

// Norwegian letters kept on top of the ASCII allow-list.
var localeLetters = map[rune]struct{}{
	'æ': {}, 'ø': {}, 'å': {},
	'Æ': {}, 'Ø': {}, 'Å': {},
}

// Sanitize turns any string into a filesystem-safe name token:
// ASCII letters, digits, '-', '_' and æøåÆØÅ, whitespace runs collapsed to '_',
// at most constants.MaxNameLength runes. Empty results become constants.FallbackName.
func Sanitize(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case allowed(r):
			b.WriteRune(r)
		}
	}

	out := reSpaceRun.ReplaceAllString(strings.TrimSpace(b.String()), "_")
	out = truncateRunes(out, constants.MaxNameLength)
	if out == "" {
		return constants.FallbackName
	}
	return out
}

func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	_, ok := localeLetters[r]
	return ok
}

func truncateRunes(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
