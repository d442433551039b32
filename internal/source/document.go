package source

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// document is a parsed static page queried with CSS (goquery) or XPath (htmlquery).
type document struct {
	url  *url.URL
	root *html.Node
	doc  *goquery.Document
}

func parseDocument(r io.Reader, pageURL *url.URL) (*document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &document{
		url:  pageURL,
		root: root,
		doc:  goquery.NewDocumentFromNode(root),
	}, nil
}

// find returns the outer HTML of each element matching selector.
func (d *document) find(selector string) ([]types.RawFragment, error) {
	if IsXPath(selector) {
		nodes, err := htmlquery.QueryAll(d.root, selector)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", types.ErrInvalidSelector, selector, err)
		}
		frags := make([]types.RawFragment, 0, len(nodes))
		for _, n := range nodes {
			frags = append(frags, types.RawFragment(htmlquery.OutputHTML(n, true)))
		}
		return frags, nil
	}

	var frags []types.RawFragment
	var outerErr error
	d.doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		h, err := goquery.OuterHtml(sel)
		if err != nil {
			outerErr = err
			return false
		}
		frags = append(frags, types.RawFragment(h))
		return true
	})
	if outerErr != nil {
		return nil, fmt.Errorf("render %q: %w", selector, outerErr)
	}
	return frags, nil
}

// nextHref returns the absolute link target of the first element matching
// selector. It reports false when nothing matches, the element has no href, or
// the element is marked disabled.
func (d *document) nextHref(selector string) (string, bool, error) {
	var href, class string
	var disabled bool

	if IsXPath(selector) {
		node, err := htmlquery.Query(d.root, selector)
		if err != nil {
			return "", false, fmt.Errorf("%w: %q: %v", types.ErrInvalidSelector, selector, err)
		}
		if node == nil {
			return "", false, nil
		}
		href = htmlquery.SelectAttr(node, "href")
		class = htmlquery.SelectAttr(node, "class")
		for _, a := range node.Attr {
			if a.Key == "disabled" {
				disabled = true
			}
		}
	} else {
		sel := d.doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", false, nil
		}
		href, _ = sel.Attr("href")
		class, _ = sel.Attr("class")
		_, disabled = sel.Attr("disabled")
	}

	if disabled || hasClass(class, "disabled") {
		return "", false, nil
	}
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(href, "javascript:") {
		return "", false, nil
	}

	target, err := url.Parse(href)
	if err != nil {
		return "", false, fmt.Errorf("invalid next link %q: %w", href, err)
	}
	if d.url != nil {
		target = d.url.ResolveReference(target)
	}
	return target.String(), true, nil
}

func hasClass(classAttr, name string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == name {
			return true
		}
	}
	return false
}
