package parser

import (
	"net/url"
	"strings"
)

// TitleFilter decides whether a link target is worth discovering.
type TitleFilter func(title string) bool

// NormalizeTitle produces the canonical form of an article title used for
// all lookups and link edges: percent-decoded, underscores as spaces,
// whitespace collapsed, fragment stripped, casing preserved.
func NormalizeTitle(raw string) string {
	s := raw
	// PathUnescape, not QueryUnescape: titles like "C++" contain literal
	// plus signs that must survive decoding.
	if decoded, err := url.PathUnescape(s); err == nil {
		s = decoded
	}
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

// skipNamespaces are MediaWiki namespaces whose pages are not articles.
var skipNamespaces = []string{
	"File:", "Image:", "Category:", "Template:", "Special:",
	"Help:", "Portal:", "Talk:", "Wikipedia:", "Draft:",
	"Media:", "Module:", "Book:", "TimedText:", "MediaWiki:",
}

// DefaultTitleFilter rejects special-namespace pages, interlanguage links,
// and disambiguation pages. It accepts everything else.
func DefaultTitleFilter(title string) bool {
	if title == "" {
		return false
	}
	for _, ns := range skipNamespaces {
		if len(title) >= len(ns) && strings.EqualFold(title[:len(ns)], ns) {
			return false
		}
	}
	// Interlanguage prefixes look like "fr:Paris" or "zh-yue:...". Keep
	// titles with longer prefixes ("Category:...") out via the list above;
	// anything with a short all-letter prefix before the colon is a
	// language link.
	if i := strings.IndexByte(title, ':'); i > 0 && i <= 10 {
		prefix := title[:i]
		isLang := true
		for _, r := range prefix {
			if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && r != '-' {
				isLang = false
				break
			}
		}
		if isLang {
			return false
		}
	}
	if strings.HasSuffix(title, "(disambiguation)") {
		return false
	}
	return true
}
