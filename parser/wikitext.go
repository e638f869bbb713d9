package parser

import (
	"regexp"
	"strings"
)

var (
	refTagRe      = regexp.MustCompile(`(?s)<ref[^>/]*/>|<ref[^>]*>.*?</ref>`)
	htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	htmlTagRe     = regexp.MustCompile(`(?s)</?[a-zA-Z][^>]*>`)
	externalRe    = regexp.MustCompile(`\[https?://[^\s\]]+ ?([^\]]*)\]`)
	headingRe     = regexp.MustCompile(`^(=+)\s*(.*?)\s*(=+)\s*$`)
)

// ParseWikitext splits MediaWiki source into sections at the top two
// heading levels, resolving wiki links as it goes. Deeper headings are
// folded into the enclosing section. The lead text becomes section 0 with
// an empty heading.
func ParseWikitext(text string, filter TitleFilter) *Parsed {
	if filter == nil {
		filter = DefaultTitleFilter
	}

	text = htmlCommentRe.ReplaceAllString(text, "")
	text = refTagRe.ReplaceAllString(text, "")
	text = stripTemplates(text)

	p := &Parsed{}
	seen := make(map[string]bool)
	catSeen := make(map[string]bool)

	// Resolve [[target]] and [[target|label]] while harvesting links and
	// categories.
	text = resolveWikiLinks(text, func(target, label string) string {
		if strings.HasPrefix(target, "Category:") || strings.HasPrefix(target, "category:") {
			name := NormalizeTitle(target[len("Category:"):])
			if name != "" && !catSeen[name] {
				catSeen[name] = true
				p.Categories = append(p.Categories, name)
			}
			return ""
		}
		p.Links = appendLink(p.Links, seen, target, filter)
		return label
	})

	text = externalRe.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "'''", "")
	text = strings.ReplaceAll(text, "''", "")
	text = htmlTagRe.ReplaceAllString(text, "")

	heading := ""
	level := 1
	var body []string
	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if content == "" {
			return
		}
		p.Sections = append(p.Sections, Section{
			Ordinal:   len(p.Sections),
			Heading:   heading,
			Level:     level,
			Text:      content,
			WordCount: countWords(content),
		})
	}

	for _, line := range strings.Split(text, "\n") {
		if m := headingRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil && m[2] != "" {
			depth := len(m[1])
			if len(m[3]) < depth {
				depth = len(m[3])
			}
			// == -> level 1, === -> level 2; deeper headings fold into the
			// enclosing section as plain text.
			if depth == 2 || depth == 3 {
				flush()
				heading = m[2]
				level = depth - 1
				continue
			}
			line = m[2]
		}
		body = append(body, line)
	}
	flush()
	return p
}

// stripTemplates removes {{...}} blocks, handling nesting.
func stripTemplates(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	depth := 0
	for i := 0; i < len(text); i++ {
		if i+1 < len(text) {
			if text[i] == '{' && text[i+1] == '{' {
				depth++
				i++
				continue
			}
			if text[i] == '}' && text[i+1] == '}' && depth > 0 {
				depth--
				i++
				continue
			}
		}
		if depth == 0 {
			b.WriteByte(text[i])
		}
	}
	return b.String()
}

// resolveWikiLinks replaces every [[target|label]] or [[target]] with the
// string returned by resolve.
func resolveWikiLinks(text string, resolve func(target, label string) string) string {
	var b strings.Builder
	b.Grow(len(text))
	for {
		start := strings.Index(text, "[[")
		if start < 0 {
			b.WriteString(text)
			break
		}
		end := strings.Index(text[start:], "]]")
		if end < 0 {
			b.WriteString(text)
			break
		}
		end += start
		b.WriteString(text[:start])

		inner := text[start+2 : end]
		target, label := inner, inner
		if i := strings.IndexByte(inner, '|'); i >= 0 {
			target, label = inner[:i], inner[i+1:]
		}
		// Strip a fragment from the visible label of bare links.
		if label == target {
			if i := strings.IndexByte(label, '#'); i >= 0 {
				label = label[:i]
			}
		}
		b.WriteString(resolve(strings.TrimSpace(target), label))
		text = text[end+2:]
	}
	return b.String()
}
