package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTMLSiteClient fetches pages from a plain documentation site. Titles map
// to paths under the site root; crawling never leaves the root host.
type HTMLSiteClient struct {
	baseURL string
	client  *http.Client
	bucket  *tokenBucket
}

// NewHTMLSite creates a documentation-site source rooted at baseURL.
func NewHTMLSite(baseURL string, rpm, burst int) *HTMLSiteClient {
	return &HTMLSiteClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		bucket:  newTokenBucket(rpm, burst),
	}
}

// Fetch retrieves a page by explicit URL when known, falling back to
// baseURL/<title>.html for titles discovered through links.
func (c *HTMLSiteClient) Fetch(ctx context.Context, title, pageURL string) (*Page, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return nil, err
	}

	if pageURL == "" {
		if c.baseURL == "" {
			return nil, fmt.Errorf("source: no url for %q and no site base configured", title)
		}
		pageURL = c.baseURL + "/" + url.PathEscape(title) + ".html"
	}

	body, err := getWithRetry(ctx, c.client, pageURL)
	if err != nil {
		return nil, err
	}

	return &Page{
		Title:   title,
		URL:     pageURL,
		Content: string(body),
		Format:  FormatHTML,
	}, nil
}

// BaseURL exposes the configured site root for the parser's same-site
// link filtering.
func (c *HTMLSiteClient) BaseURL() string {
	return c.baseURL
}
