package naming

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule maps a case-insensitive, word-bounded expression to a canonical name.
type Rule struct {
	Name string
	Expr *regexp.Regexp
}

// NewRule compiles keywords into a case-insensitive alternation bounded by any
// non-letter, non-digit rune, so æøå count as word characters. Keywords are matched literally.
func NewRule(name string, keywords ...string) (Rule, error) {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			quoted = append(quoted, regexp.QuoteMeta(k))
		}
	}
	if len(quoted) == 0 {
		return Rule{}, fmt.Errorf("rule %q has no keywords", name)
	}
	re, err := regexp.Compile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}])`)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Name: name, Expr: re}, nil
}

func mustRule(name string, keywords ...string) Rule {
	r, err := NewRule(name, keywords...)
	if err != nil {
		panic(err)
	}
	return r
}

// Order matters: first match wins, so compound names come before anything they contain.
var defaultRules = []Rule{
	mustRule("Rhodium", "rhodium"),
	mustRule("Hydrogen peroxide", "hydrogen peroxide", "hydrogenperoksid"),
	mustRule("Sodium hypochlorite", "sodium hypochlorite", "natriumhypokloritt"),
	mustRule("Sodium hydroxide", "sodium hydroxide", "natriumhydroksid", "caustic soda"),
	mustRule("Hydrochloric acid", "hydrochloric acid", "saltsyre"),
	mustRule("Sulfuric acid", "sulfuric acid", "sulphuric acid", "svovelsyre"),
	mustRule("Nitric acid", "nitric acid", "salpetersyre"),
	mustRule("Acetic acid", "acetic acid", "eddiksyre"),
	mustRule("Isopropanol", "isopropanol", "isopropyl alcohol", "propan-2-ol", "2-propanol"),
	mustRule("Rødsprit", "rødsprit", "denatured alcohol", "methylated spirit"),
	mustRule("Ethanol", "ethanol", "etanol"),
	mustRule("Methanol", "methanol", "metanol"),
	mustRule("Acetone", "acetone", "aceton"),
	mustRule("Toluene", "toluene", "toluen"),
	mustRule("Xylene", "xylene", "xylen"),
	mustRule("White spirit", "white spirit", "lacknafta", "mineralterpentin"),
	mustRule("Ethylene glycol", "ethylene glycol", "monoetylenglykol", "etylenglykol"),
	mustRule("AdBlue", "adblue"),
	mustRule("WD-40", "wd-40", "wd40"),
	mustRule("Argon", "argon"),
	mustRule("Helium", "helium"),
}

// DefaultRules returns a copy of the built-in, ordered rule table.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}

// Matcher checks text against an ordered, read-only rule table.
// Safe for concurrent use.
type Matcher struct {
	rules []Rule
}

// NewMatcher builds a matcher over rules in the given order. A nil or empty slice
// yields a matcher that never matches.
func NewMatcher(rules []Rule) *Matcher {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Matcher{rules: cp}
}

// DefaultMatcher uses the built-in table.
func DefaultMatcher() *Matcher {
	return &Matcher{rules: defaultRules}
}

// Match returns the first rule whose expression occurs in text.
func (m *Matcher) Match(text string) (Rule, bool) {
	if m == nil || text == "" {
		return Rule{}, false
	}
	for _, r := range m.rules {
		if r.Expr.MatchString(text) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules returns a copy of the table in evaluation order.
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}
