package iris

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"iris-scraper/models"
	"iris-scraper/normalize"
)

const (
	// A description candidate shorter than this is a label, not prose.
	minDescriptionChars = 60
	// Longest description kept; detail pages repeat whole brochures inline.
	maxDescriptionChars = 1000
	// A label longer than this is running text, not a field label.
	maxLabelChars = 30
)

// extractMetadata reads the title, description and labeled header fields
// from a detail page snapshot. Everything is optional; a page that exposes
// nothing yields an empty (still valid) DetailMetadata.
func extractMetadata(doc *goquery.Document) models.DetailMetadata {
	meta := models.DetailMetadata{Fields: labeledFields(doc)}

	if title, ok := firstText(doc.Selection, titleSelectors); ok {
		meta.Title = &title
	}
	if desc, ok := findDescription(doc); ok {
		meta.Description = &desc
	}
	return meta
}

// findDescription walks the description candidates and keeps the first text
// block long enough to be prose.
func findDescription(doc *goquery.Document) (string, bool) {
	for _, sel := range descriptionSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			txt := selText(s)
			if len([]rune(txt)) < minDescriptionChars {
				return true
			}
			found = truncateRunes(txt, maxDescriptionChars)
			return false
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// labeledFields scans label-shaped nodes for the known field vocabulary and
// pairs each with its adjacent value. The first hit per field wins.
func labeledFields(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	doc.Find("dt, th, strong, b, label, .ant-descriptions-item-label").Each(func(_ int, s *goquery.Selection) {
		label := strings.ToLower(selText(s))
		if label == "" || len([]rune(label)) > maxLabelChars {
			return
		}
		field, ok := matchLabel(label)
		if !ok {
			return
		}
		if _, done := fields[field]; done {
			return
		}
		if val := adjacentValue(s, label); val != "" {
			fields[field] = val
		}
	})
	return fields
}

func matchLabel(label string) (string, bool) {
	for _, entry := range metadataLabels {
		for _, fragment := range entry.Fragments {
			if strings.Contains(label, fragment) {
				return entry.Field, true
			}
		}
	}
	return "", false
}

// adjacentValue resolves the value paired with a label node: the next
// sibling when one exists, otherwise the parent's text with the label and
// its separator stripped off.
func adjacentValue(label *goquery.Selection, labelText string) string {
	if sib := label.Next(); sib.Length() > 0 {
		if txt := selText(sib); txt != "" {
			return txt
		}
	}
	parent := label.Parent()
	if parent.Length() == 0 {
		return ""
	}
	full := selText(parent)
	val := full
	if idx := strings.Index(strings.ToLower(full), labelText); idx >= 0 {
		val = full[idx+len(labelText):]
	}
	val = strings.TrimLeft(val, ":  -–")
	return normalize.Text(val)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
