// Package source fetches raw article content from an external corpus,
// either the Wikipedia API or a plain documentation site. All clients
// share a polite token-bucket rate limiter and retry with jitter.
package source

import (
	"context"
	"errors"
	"fmt"
)

// userAgent identifies the crawler to remote servers, as the Wikimedia
// API etiquette requires.
const userAgent = "wikigr/1.0 (https://github.com/wikigr/wikigr)"

// ErrNotFound is returned when the source has no page for a title. The
// expansion pipeline treats this as a permanent failure.
var ErrNotFound = errors.New("source: page not found")

// Format tags the markup of fetched content.
type Format string

const (
	FormatWikitext Format = "wikitext"
	FormatHTML     Format = "html"
)

// Page is the raw content fetched for one title.
type Page struct {
	Title   string
	URL     string
	Content string
	Format  Format
}

// Client fetches raw pages. Implementations rate-limit internally; Fetch
// blocks until a request slot is available or ctx is done.
type Client interface {
	Fetch(ctx context.Context, title, url string) (*Page, error)
}

// New builds a source client by kind ("wikipedia" or "html").
func New(kind, baseURL string, rpm, burst int) (Client, error) {
	switch kind {
	case "wikipedia":
		return NewWikipedia(baseURL, rpm, burst), nil
	case "html":
		return NewHTMLSite(baseURL, rpm, burst), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}
