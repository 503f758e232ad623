package ocr

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reBoxNoise   = regexp.MustCompile(`(?m)^[ \t]*[_\-|=~]{3,}[ \t]*$`)
)

// Normalize collapses noisy whitespace and drops ruler lines that tesseract reads
// from table borders. Line breaks are kept; CAS numbers and digits are left alone.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, "\f", "\n")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
