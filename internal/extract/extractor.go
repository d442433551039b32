// Package extract splits normalized review blocks into structured records.
//
// Blocks arrive in pairs: a header block holding the reviewer name and the
// rating or shelf phrase, followed by a body block holding the review text,
// usually preceded by a duplicated preview of its first sentence.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// Policy decides what happens to a pair whose header has no separator.
type Policy string

const (
	// PolicySkip drops the record and reports the failure.
	PolicySkip Policy = "skip"
	// PolicyPartial emits the record with empty reviewer and rating.
	PolicyPartial Policy = "partial"
	// PolicyAbort stops extracting the page at the first failure.
	PolicyAbort Policy = "abort"
)

// ParsePolicy converts a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySkip, PolicyPartial, PolicyAbort:
		return p, nil
	case "":
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown parse failure policy %q (valid: skip, partial, abort)", s)
	}
}

// Result is the outcome of extracting one page of blocks.
type Result struct {
	Records  []types.ReviewRecord
	Failures []*types.ParseError

	// Dropped counts trailing blocks that had no partner.
	Dropped int
}

// Extractor parses block pairs using a compiled pattern table.
type Extractor struct {
	prefixes    []prefixRule
	separators  []string
	terminators []string
	markers     []*regexp.Regexp
	truncation  []*regexp.Regexp
	previewLen  int
	policy      Policy
}

// New compiles the patterns and returns an Extractor.
func New(p Patterns, policy Policy) (*Extractor, error) {
	if len(p.Separators) == 0 {
		return nil, fmt.Errorf("at least one separator is required")
	}
	if p.PreviewLength <= 0 {
		return nil, fmt.Errorf("preview length must be > 0, got %d", p.PreviewLength)
	}
	if policy == "" {
		policy = PolicySkip
	}

	prefixes, err := compilePrefixes(p.Prefixes)
	if err != nil {
		return nil, err
	}
	markers, err := compileMarkers(p.BodyMarkers)
	if err != nil {
		return nil, err
	}
	truncation, err := compileMarkers(p.TruncationMarkers)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		prefixes:    prefixes,
		separators:  append([]string(nil), p.Separators...),
		terminators: append([]string(nil), p.Terminators...),
		markers:     markers,
		truncation:  truncation,
		previewLen:  p.PreviewLength,
		policy:      policy,
	}, nil
}

// Policy returns the configured failure policy.
func (e *Extractor) Policy() Policy { return e.policy }

// Extract parses a sequence of blocks into records. See ExtractPage.
func (e *Extractor) Extract(blocks []types.TextBlock, book string) (Result, error) {
	return e.ExtractPage(0, blocks, book)
}

// ExtractPage parses blocks two at a time: block 2j-1 is a header, block 2j
// its body. Record j of the result comes from pair j. A trailing block without
// a partner is dropped. The returned error is non-nil only under PolicyAbort,
// in which case Result holds the records parsed before the failure.
func (e *Extractor) ExtractPage(page int, blocks []types.TextBlock, book string) (Result, error) {
	n := len(blocks) / 2
	res := Result{
		Records: make([]types.ReviewRecord, 0, n),
		Dropped: len(blocks) % 2,
	}

	for j := 0; j < n; j++ {
		header, body := blocks[2*j], blocks[2*j+1]

		rec := types.ReviewRecord{
			Book:   book,
			Review: e.ParseBody(body),
		}

		reviewer, rating, err := e.ParseHeader(header)
		if err != nil {
			perr := &types.ParseError{Page: page, Pair: j + 1, Block: header, Err: err}
			res.Failures = append(res.Failures, perr)

			switch e.policy {
			case PolicyAbort:
				return res, perr
			case PolicyPartial:
				res.Records = append(res.Records, rec)
			}
			continue
		}

		rec.Reviewer = reviewer
		rec.Rating = rating
		res.Records = append(res.Records, rec)
	}

	return res, nil
}

// ParseHeader splits a header block into reviewer name and rating text.
// It fails with types.ErrNoSeparator when no separator phrase is present.
func (e *Extractor) ParseHeader(block types.TextBlock) (string, string, error) {
	// Cleaned blocks carry no trailing space, so a status phrase that ends
	// the header only matches a separator against the padded text.
	s := string(block) + " "
	start := e.skipPrefixes(s)

	rel, sepLen := earliest(s[start:], e.separators)
	if rel < 0 {
		return "", "", types.ErrNoSeparator
	}
	sepStart := start + rel
	sepEnd := sepStart + sepLen
	reviewer := strings.TrimSpace(s[start:sepStart])

	// Terminators like " Shelves" start with a space the separator may have consumed.
	from := sepEnd
	if s[from-1] == ' ' {
		from--
	}
	end := len(s)
	if i, _ := earliest(s[from:], e.terminators); i >= 0 {
		end = from + i
	}

	rating := ""
	if end > sepEnd {
		rating = strings.TrimSpace(s[sepEnd:end])
	}
	return reviewer, rating, nil
}

// ParseBody returns the review text of a body block. The full text starts at
// the second occurrence of the block's preview, or at the start of the block
// when the preview is not repeated, and ends at the first truncation marker
// after that, or at the end of the block. Truncation markers only apply once
// a repeated preview shows the body was expanded from a truncated copy.
//
// The preview must be byte-identical to the start of the full text; pages that
// escape the two copies differently fall back to the start of the block.
func (e *Extractor) ParseBody(block types.TextBlock) string {
	s := string(block)
	if s == "" {
		return ""
	}

	start := 0
	preview := firstRunes(s, e.previewLen)
	if len(preview) < len(s) {
		_, size := utf8.DecodeRuneInString(s)
		if i := strings.Index(s[size:], preview); i >= 0 {
			start = size + i
		}
	}

	end := len(s)
	rest := s[start:]
	markers := e.markers
	if start > 0 {
		markers = append(markers[:len(markers):len(markers)], e.truncation...)
	}
	for _, m := range markers {
		if loc := m.FindStringIndex(rest); loc != nil && start+loc[0] < end {
			end = start + loc[0]
		}
	}

	return strings.TrimSpace(s[start:end])
}

func (e *Extractor) skipPrefixes(s string) int {
	pos := 0
	for matched := true; matched && pos < len(s); {
		matched = false
		for _, p := range e.prefixes {
			if loc := p.re.FindStringIndex(s[pos:]); loc != nil && loc[1] > 0 {
				pos += loc[1]
				matched = true
			}
		}
	}
	return pos
}

func firstRunes(s string, n int) string {
	i := 0
	for count := 0; i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}
