package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultWikipediaBase = "https://en.wikipedia.org"

// fetchRetries is the number of attempts per page for transient failures.
const fetchRetries = 3

// WikipediaClient fetches article wikitext through the MediaWiki action
// API (action=query&prop=revisions).
type WikipediaClient struct {
	baseURL string
	client  *http.Client
	bucket  *tokenBucket
}

// NewWikipedia creates a Wikipedia source. baseURL defaults to English
// Wikipedia and may point at any MediaWiki installation root.
func NewWikipedia(baseURL string, rpm, burst int) *WikipediaClient {
	if baseURL == "" {
		baseURL = defaultWikipediaBase
	}
	return &WikipediaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		bucket:  newTokenBucket(rpm, burst),
	}
}

type revisionsResponse struct {
	Query struct {
		Pages []struct {
			Title     string `json:"title"`
			Missing   bool   `json:"missing"`
			Revisions []struct {
				Slots struct {
					Main struct {
						Content string `json:"content"`
					} `json:"main"`
				} `json:"slots"`
			} `json:"revisions"`
		} `json:"pages"`
	} `json:"query"`
}

// Fetch retrieves the current wikitext for a title. The url argument is
// ignored; Wikipedia pages are addressed by title.
func (c *WikipediaClient) Fetch(ctx context.Context, title, _ string) (*Page, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("action", "query")
	q.Set("prop", "revisions")
	q.Set("rvprop", "content")
	q.Set("rvslots", "main")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	q.Set("redirects", "1")
	q.Set("titles", title)
	endpoint := c.baseURL + "/w/api.php?" + q.Encode()

	body, err := getWithRetry(ctx, c.client, endpoint)
	if err != nil {
		return nil, err
	}

	var resp revisionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding wikipedia response: %w", err)
	}
	if len(resp.Query.Pages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, title)
	}
	page := resp.Query.Pages[0]
	if page.Missing || len(page.Revisions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, title)
	}

	canonical := page.Title
	if canonical == "" {
		canonical = title
	}
	return &Page{
		Title:   canonical,
		URL:     c.baseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(canonical, " ", "_")),
		Content: page.Revisions[0].Slots.Main.Content,
		Format:  FormatWikitext,
	}, nil
}

// getWithRetry issues a GET, retrying transient failures (network errors
// and 429/5xx) with jittered backoff. 404s map to ErrNotFound.
func getWithRetry(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < fetchRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			select {
			case <-time.After(delay + jitter(delay)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("source: status %d from %s", resp.StatusCode, url)
		default:
			return nil, fmt.Errorf("source: status %d from %s", resp.StatusCode, url)
		}
	}
	return nil, fmt.Errorf("source: retries exhausted: %w", lastErr)
}
