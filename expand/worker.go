package expand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/wikigr/wikigr/graph"
	"github.com/wikigr/wikigr/parser"
	"github.com/wikigr/wikigr/source"
	"github.com/wikigr/wikigr/store"
)

// retryBaseDelay seeds the exponential backoff applied to transient
// per-article failures.
const retryBaseDelay = 5 * time.Second

// worker runs the full per-article pipeline: fetch, parse, persist,
// embed, extract.
type worker struct {
	cfg       Config
	store     *store.Store
	src       source.Client
	embedder  *Embedder
	extractor *graph.Extractor
	filter    parser.TitleFilter
	siteBase  string
}

// process drives one claimed article to processed or failed. It returns
// an error only for store-level failures the orchestrator should abort
// on; pipeline failures are absorbed into MarkFailed.
func (w *worker) process(ctx context.Context, ref store.ArticleRef) error {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(hbCtx, ref.Title)

	if err := w.run(ctx, ref); err != nil {
		if ctx.Err() != nil {
			// Cancellation: hand the claim back without burning a retry.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if relErr := w.store.ReleaseClaim(releaseCtx, ref.Title); relErr != nil {
				slog.Warn("expand: releasing claim on shutdown failed",
					"article", ref.Title, "error", relErr)
			}
			return ctx.Err()
		}

		permanent := isPermanent(err)
		retryAt := time.Now().Add(backoff(ref.RetryCount))
		slog.Warn("expand: article failed",
			"article", ref.Title, "permanent", permanent,
			"retry_count", ref.RetryCount, "error", err)
		return w.store.MarkFailed(ctx, ref.Title, err.Error(), permanent, w.cfg.MaxRetries, retryAt)
	}
	return nil
}

// run is the happy path: each stage has its own timeout, and every write
// is a single store transaction.
func (w *worker) run(ctx context.Context, ref store.ArticleRef) error {
	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	page, err := w.src.Fetch(fetchCtx, ref.Title, ref.URL)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	var parsed *parser.Parsed
	switch page.Format {
	case source.FormatWikitext:
		parsed = parser.ParseWikitext(page.Content, w.filter)
	case source.FormatHTML:
		parsed, err = parser.ParseHTML(page.Content, w.siteBase, w.filter)
		if err != nil {
			return fmt.Errorf("parse: %w", err)
		}
	default:
		return fmt.Errorf("parse: unknown format %q", page.Format)
	}

	if parsed.WordCount() < w.cfg.MinArticleWords {
		return errThinContent
	}

	sections := make([]store.Section, len(parsed.Sections))
	for i, s := range parsed.Sections {
		sections[i] = store.Section{
			Ordinal:   s.Ordinal,
			Heading:   s.Heading,
			Level:     s.Level,
			Content:   s.Text,
			WordCount: s.WordCount,
		}
	}
	if err := w.store.WriteArticleContents(ctx, ref.Title, sections,
		parsed.Links, parsed.Categories, w.cfg.MaxDepth, w.cfg.LinkBudgetPerArticle); err != nil {
		return fmt.Errorf("writing contents: %w", err)
	}

	texts := make([]string, len(parsed.Sections))
	for i, s := range parsed.Sections {
		texts[i] = s.Text
	}
	embedCtx, cancel := context.WithTimeout(ctx, w.cfg.EmbedTimeout)
	vecs, err := w.embedder.EmbedTexts(embedCtx, texts)
	cancel()
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	vectors := make(map[int][]float32, len(vecs))
	for i, v := range vecs {
		vectors[parsed.Sections[i].Ordinal] = v
	}
	if err := w.store.WriteEmbeddings(ctx, ref.Title, vectors); err != nil {
		return fmt.Errorf("writing embeddings: %w", err)
	}

	inputs := make([]graph.SectionInput, len(parsed.Sections))
	for i, s := range parsed.Sections {
		inputs[i] = graph.SectionInput{Ordinal: s.Ordinal, Heading: s.Heading, Text: s.Text}
	}
	extractCtx, cancel := context.WithTimeout(ctx, w.cfg.ExtractTimeout)
	extraction, err := w.extractor.Extract(extractCtx, ref.Title, inputs)
	cancel()
	if err != nil {
		return fmt.Errorf("extraction: %w", err)
	}

	entities := make([]store.Entity, len(extraction.Entities))
	for i, e := range extraction.Entities {
		entities[i] = store.Entity{Name: e.Name, Type: e.Type, Description: e.Description}
	}
	relations := make([]store.Relation, len(extraction.Relations))
	for i, r := range extraction.Relations {
		relations[i] = store.Relation{Source: r.Source, Target: r.Target, Predicate: r.Predicate}
	}
	facts := make([]store.Fact, len(extraction.Facts))
	for i, f := range extraction.Facts {
		facts[i] = store.Fact{SectionOrdinal: f.Section, Text: f.Text}
	}
	if err := w.store.WriteExtractions(ctx, ref.Title, entities, relations, facts); err != nil {
		return fmt.Errorf("writing extractions: %w", err)
	}

	slog.Info("expand: article processed",
		"article", ref.Title, "depth", ref.Depth,
		"sections", len(sections), "entities", len(entities))
	return nil
}

// heartbeat refreshes the worker's claim until its context is cancelled.
func (w *worker) heartbeat(ctx context.Context, title string) {
	interval := w.cfg.HeartbeatTimeout / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, title, time.Now()); err != nil && ctx.Err() == nil {
				slog.Warn("expand: heartbeat failed", "article", title, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// errThinContent marks an article below the minimum word count. It is a
// permanent failure: refetching the same stub will not grow it.
var errThinContent = errors.New("thin content")

// isPermanent classifies failures that retrying cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, errThinContent) || errors.Is(err, source.ErrNotFound)
}

// backoff computes the retry delay for the n-th failure with jitter.
func backoff(retryCount int) time.Duration {
	d := retryBaseDelay * time.Duration(1<<retryCount)
	return d + time.Duration(rand.Int63n(int64(d/2)+1))
}
