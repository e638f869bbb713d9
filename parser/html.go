package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML splits an HTML document into sections at h1/h2 boundaries and
// harvests outbound links that stay within the same site. Used for the
// documentation-site source; Wikipedia-style /wiki/ paths are resolved to
// bare titles.
func ParseHTML(content, baseURL string, filter TitleFilter) (*Parsed, error) {
	if filter == nil {
		filter = DefaultTitleFilter
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, err
	}

	var base *url.URL
	if baseURL != "" {
		base, _ = url.Parse(baseURL)
	}

	doc.Find("script, style, nav, footer, header").Remove()

	p := &Parsed{}
	seen := make(map[string]bool)

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

	root := doc.Find("main, article, #content, body").First()
	root.Find("h1, h2, p, li, pre, blockquote, td").Each(func(_ int, sel *goquery.Selection) {
		switch goquery.NodeName(sel) {
		case "h1":
			flush()
			heading = strings.TrimSpace(sel.Text())
			level = 1
		case "h2":
			flush()
			heading = strings.TrimSpace(sel.Text())
			level = 2
		default:
			if text := strings.TrimSpace(sel.Text()); text != "" {
				body = append(body, text)
			}
		}
	})
	flush()

	root.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		title, ok := titleFromHref(href, base)
		if !ok {
			return
		}
		p.Links = appendLink(p.Links, seen, title, filter)
	})

	return p, nil
}

// titleFromHref converts an anchor href to an article title. Off-site and
// non-page links (fragments, mailto, assets) are dropped.
func titleFromHref(href string, base *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if u.IsAbs() {
		if base == nil || u.Host != base.Host {
			return "", false
		}
	}

	path := u.Path
	if i := strings.Index(path, "/wiki/"); i >= 0 {
		return path[i+len("/wiki/"):], true
	}

	// Documentation-site pages: use the last path element, dropping a
	// file extension.
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	for _, ext := range []string{".html", ".htm", ".md"} {
		path = strings.TrimSuffix(path, ext)
	}
	if path == "" {
		return "", false
	}
	// Skip obvious asset links.
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return "", false
	}
	return path, true
}
