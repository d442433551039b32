package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// PrefixPattern is a named piece of boilerplate that may precede the reviewer name.
type PrefixPattern struct {
	Name    string `mapstructure:"name"    yaml:"name"`
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
}

// Patterns is the table of phrases the extractor splits blocks on.
type Patterns struct {
	// Prefixes are stripped from the start of a header block, repeatedly,
	// until none matches. Patterns are regular expressions anchored at the start.
	Prefixes []PrefixPattern `mapstructure:"prefixes" yaml:"prefixes"`

	// Separators end the reviewer name and start the rating text.
	Separators []string `mapstructure:"separators" yaml:"separators"`

	// Terminators end the rating text.
	Terminators []string `mapstructure:"terminators" yaml:"terminators"`

	// BodyMarkers are regular expressions marking where a review body is truncated.
	BodyMarkers []string `mapstructure:"body_markers" yaml:"body_markers"`

	// TruncationMarkers end an expanded body only when its preview was found
	// repeated. A short body that merely ends in the same word is kept whole.
	TruncationMarkers []string `mapstructure:"truncation_markers" yaml:"truncation_markers"`

	// PreviewLength is how many leading runes of a body block make up the
	// duplicated preview.
	PreviewLength int `mapstructure:"preview_length" yaml:"preview_length"`
}

// DefaultPatterns returns the phrase table for goodreads-style review listings.
func DefaultPatterns() Patterns {
	return Patterns{
		Prefixes: []PrefixPattern{
			{Name: "whitespace", Pattern: `\s+`},
			{Name: "review-by", Pattern: `(?:A )?[Rr]eview by\s+`},
		},
		Separators: []string{" rated it ", " marked it ", " added it "},
		Terminators: []string{
			"· ",
			" Shelves",
			" Recommend",
			" review of another edition",
		},
		BodyMarkers: []string{
			`\.+\s*more`,
			`Blog`,
		},
		TruncationMarkers: []string{`\smore$`},
		PreviewLength:     50,
	}
}

type prefixRule struct {
	name string
	re   *regexp.Regexp
}

func compilePrefixes(prefixes []PrefixPattern) ([]prefixRule, error) {
	rules := make([]prefixRule, 0, len(prefixes))
	for _, p := range prefixes {
		expr := p.Pattern
		if !strings.HasPrefix(expr, "^") {
			expr = "^(?:" + expr + ")"
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("prefix pattern %q: %w", p.Name, err)
		}
		rules = append(rules, prefixRule{name: p.Name, re: re})
	}
	return rules, nil
}

func compileMarkers(markers []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(markers))
	for _, m := range markers {
		re, err := regexp.Compile(m)
		if err != nil {
			return nil, fmt.Errorf("body marker %q: %w", m, err)
		}
		res = append(res, re)
	}
	return res, nil
}

// earliest returns the position and length of the first occurrence of any
// phrase in s, or -1 when none occurs.
func earliest(s string, phrases []string) (int, int) {
	pos, size := -1, 0
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if i := strings.Index(s, p); i >= 0 && (pos < 0 || i < pos) {
			pos, size = i, len(p)
		}
	}
	return pos, size
}
