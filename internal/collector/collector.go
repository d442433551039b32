// Package collector turns raw review markup into normalized text blocks.
package collector

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

var (
	// nonWordRe matches anything that is not an ASCII letter or dash, and runs of periods.
	nonWordRe = regexp.MustCompile(`[^A-Za-z\-]|\.+`)
	spaceRe   = regexp.MustCompile(`[\n\r\t ]+`)
	tagRe     = regexp.MustCompile(`<[^>]*>`)
)

// Clean strips markup from each fragment and normalizes the remaining text.
// The output has exactly one block per fragment, in the same order.
func Clean(fragments []types.RawFragment) []types.TextBlock {
	blocks := make([]types.TextBlock, len(fragments))
	for i, frag := range fragments {
		blocks[i] = types.TextBlock(CleanText(StripMarkup(string(frag))))
	}
	return blocks
}

// StripMarkup returns the rendered text content of an HTML fragment.
func StripMarkup(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		// The HTML tokenizer only fails on reader errors; keep a crude fallback anyway.
		return html.UnescapeString(tagRe.ReplaceAllString(fragment, " "))
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Text()
}

// CleanText normalizes already-stripped text: punctuation and markup remnants
// become spaces, hyphenated tokens survive, and whitespace collapses to single spaces.
// CleanText(CleanText(s)) == CleanText(s).
func CleanText(s string) string {
	s = nonWordRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
