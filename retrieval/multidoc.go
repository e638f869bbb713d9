package retrieval

import (
	"context"
	"log/slog"

	"github.com/wikigr/wikigr/store"
)

const (
	// maxNeighborArticles caps how many graph neighbors multi-doc
	// expansion may add to the context.
	maxNeighborArticles = 2

	// maxNeighborHops bounds the outbound traversal from the anchor.
	maxNeighborHops = 2

	// maxContextArticles caps the total article count after expansion.
	maxContextArticles = 7
)

// expandMultiDoc augments the ranked list with graph neighbors of the
// top-ranked (anchor) article. Neighbors are followed outbound up to
// maxNeighborHops, at most maxNeighborArticles are added, and the total
// never exceeds maxContextArticles. Added neighbors inherit the anchor's
// similarity so downstream ordering keeps them adjacent to it.
func (a *Agent) expandMultiDoc(ctx context.Context, arts []rankedArticle) []rankedArticle {
	if len(arts) == 0 || len(arts) >= maxContextArticles {
		return arts
	}
	anchor := arts[0]

	present := make(map[string]bool, len(arts))
	for _, art := range arts {
		present[art.Title] = true
	}

	added := 0
	frontier := []string{anchor.Title}
	for hop := 0; hop < maxNeighborHops && added < maxNeighborArticles; hop++ {
		var next []string
		for _, title := range frontier {
			neighbors, err := a.store.Neighbors(ctx, title, store.Outbound)
			if err != nil {
				slog.Warn("retrieval: neighbor lookup failed", "article", title, "error", err)
				return arts
			}
			for _, n := range neighbors {
				if added >= maxNeighborArticles || len(arts) >= maxContextArticles {
					return arts
				}
				if present[n] {
					continue
				}
				present[n] = true
				next = append(next, n)

				sections, err := a.storedSections(ctx, n)
				if err != nil || len(sections) == 0 {
					continue
				}
				arts = append(arts, rankedArticle{
					Title:      n,
					Similarity: anchor.Similarity,
					Score:      anchor.Score,
					Sections:   sections,
					Neighbor:   true,
				})
				added++
			}
		}
		frontier = next
	}
	return arts
}

// storedSections loads an article's lead sections straight from the
// store. Only fully processed articles qualify.
func (a *Agent) storedSections(ctx context.Context, title string) ([]store.SectionMatch, error) {
	art, err := a.store.ArticleByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	if art.State != store.StateProcessed {
		return nil, nil
	}
	sections, err := a.store.SectionsByArticle(ctx, title)
	if err != nil {
		return nil, err
	}
	if len(sections) > a.cfg.MaxSectionsPerArticle {
		sections = sections[:a.cfg.MaxSectionsPerArticle]
	}
	out := make([]store.SectionMatch, len(sections))
	for i, s := range sections {
		out[i] = store.SectionMatch{
			SectionID:    s.ID,
			ArticleID:    s.ArticleID,
			ArticleTitle: title,
			Ordinal:      s.Ordinal,
			Heading:      s.Heading,
			Content:      s.Content,
			WordCount:    s.WordCount,
		}
	}
	return out, nil
}
