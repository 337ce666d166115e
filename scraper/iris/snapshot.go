package iris

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"iris-scraper/normalize"
)

// parseSnapshot turns a captured outerHTML string into a queryable document.
func parseSnapshot(pageHTML string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
}

// nodeText walks n depth-first and joins text fragments with single spaces,
// so "<td>Área<br>interna</td>" reads as "Área interna" rather than running
// the words together the way innerText concatenation would.
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			if t := normalize.Text(node.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

// selText returns the normalized text of the first node of s.
func selText(s *goquery.Selection) string {
	if s == nil || s.Length() == 0 {
		return ""
	}
	return nodeText(s.Get(0))
}

// firstMatch returns the first selector's selection that has at least one
// node, or nil when none match.
func firstMatch(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if s := root.Find(sel); s.Length() > 0 {
			return s
		}
	}
	return nil
}

// firstText walks the selector list until one yields non-empty text.
func firstText(root *goquery.Selection, selectors []string) (string, bool) {
	for _, sel := range selectors {
		s := root.Find(sel)
		if s.Length() == 0 {
			continue
		}
		if txt := selText(s.First()); txt != "" {
			return txt, true
		}
	}
	return "", false
}

// firstAttr walks the selector list until one yields a non-empty attribute.
func firstAttr(root *goquery.Selection, selectors []string, attr string) (string, bool) {
	for _, sel := range selectors {
		s := root.Find(sel)
		if s.Length() == 0 {
			continue
		}
		if v, ok := s.First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
