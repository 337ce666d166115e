// Package normalize converts raw text fragments scraped from the catalog
// into typed values. All functions are pure and tolerant of messy input:
// an unreadable fragment yields an absent value, never a sentinel.
package normalize

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	// numberRegexp captures the first numeric token, separators included
	numberRegexp = regexp.MustCompile(`\d[\d.,]*`)
	// intRegexp captures a plain digit run
	intRegexp = regexp.MustCompile(`\d+`)
)

// truthyCells is the fixed vocabulary of affirmative table-cell values.
var truthyCells = map[string]struct{}{
	"sí": {}, "si": {}, "yes": {}, "true": {}, "✓": {}, "x": {},
}

// Text strips leading/trailing whitespace and collapses internal whitespace.
func Text(s string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

// Number reads the first numeric token from raw, tolerating currency markers,
// unit suffixes and both separator conventions ("1.234,56" and "1,234.56").
// A lone dot followed by exactly three digits is treated as a Latin thousands
// separator ("125.000" → 125000). Returns nil when nothing parseable remains.
func Number(raw string) *float64 {
	token := numberRegexp.FindString(raw)
	if token == "" {
		return nil
	}

	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			token = strings.ReplaceAll(token, ".", "")
			token = strings.Replace(token, ",", ".", 1)
		} else {
			token = strings.ReplaceAll(token, ",", "")
		}
	case lastComma >= 0:
		decimals := len(token) - lastComma - 1
		if strings.Count(token, ",") == 1 && decimals <= 2 {
			token = strings.Replace(token, ",", ".", 1)
		} else {
			token = strings.ReplaceAll(token, ",", "")
		}
	case lastDot >= 0:
		decimals := len(token) - lastDot - 1
		if strings.Count(token, ".") > 1 || decimals == 3 {
			token = strings.ReplaceAll(token, ".", "")
		}
	}

	val, err := strconv.ParseFloat(token, 64)
	if err != nil || val < 0 {
		return nil
	}
	return &val
}

// Int reads the first integer digit run from raw.
func Int(raw string) *int {
	token := intRegexp.FindString(raw)
	if token == "" {
		return nil
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return nil
	}
	return &n
}

// Bool reports whether the cell text marks an affirmative value.
func Bool(raw string) bool {
	_, ok := truthyCells[strings.ToLower(Text(raw))]
	return ok
}

// AbsoluteURL resolves ref against base and returns a normalized absolute
// http(s) URL with the fragment stripped. Pseudo-links (javascript:, mailto:,
// tel:, data:, bare anchors) are rejected.
func AbsoluteURL(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}

	lower := strings.ToLower(ref)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:", "#"} {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	u.Fragment = ""
	return u.String(), true
}

// FileExt returns the lowercased extension of the URL path, without the dot.
func FileExt(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}
