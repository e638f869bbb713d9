// Package parser turns raw article content (MediaWiki wikitext or HTML)
// into an ordered list of sections plus the outbound links and categories
// used for graph expansion. Title normalization lives here so that both
// source paths produce identical canonical link targets.
package parser

import "strings"

// Parsed is the result of parsing one article.
type Parsed struct {
	Sections   []Section // ordered by Ordinal
	Links      []string  // canonical titles, filtered and deduplicated
	Categories []string
}

// Section is a heading-bounded fragment of article text. The lead text
// before the first heading becomes ordinal 0 with an empty heading.
type Section struct {
	Ordinal   int
	Heading   string
	Level     int // 1 or 2
	Text      string
	WordCount int
}

// WordCount returns the total words across all sections.
func (p *Parsed) WordCount() int {
	total := 0
	for _, s := range p.Sections {
		total += s.WordCount
	}
	return total
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

// appendLink normalizes, filters, and deduplicates a link target.
func appendLink(links []string, seen map[string]bool, target string, filter TitleFilter) []string {
	title := NormalizeTitle(target)
	if title == "" || seen[title] || !filter(title) {
		return links
	}
	seen[title] = true
	return append(links, title)
}
