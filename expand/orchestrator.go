package expand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wikigr/wikigr/graph"
	"github.com/wikigr/wikigr/llm"
	"github.com/wikigr/wikigr/parser"
	"github.com/wikigr/wikigr/source"
	"github.com/wikigr/wikigr/store"
)

// idlePollInterval is how often the dispatcher re-polls when no article
// is claimable (all in flight or backing off).
const idlePollInterval = 500 * time.Millisecond

// Progress is a snapshot of an expansion run, emitted at most once per
// second to the configured callback.
type Progress struct {
	Processed  int `json:"processed"`
	Target     int `json:"target"`
	Discovered int `json:"discovered"`
	Claimed    int `json:"claimed"`
	Loaded     int `json:"loaded"`
	Failed     int `json:"failed"`
}

// Orchestrator coordinates a pool of workers over the store's claim
// queue until the target is met or the frontier drains.
type Orchestrator struct {
	cfg        Config
	store      *store.Store
	src        source.Client
	embedder   *Embedder
	extractor  *graph.Extractor
	filter     parser.TitleFilter
	siteBase   string
	onProgress func(Progress)
}

// New builds an orchestrator. chat drives extraction; embed produces the
// section vectors checked against embeddingDim.
func New(cfg Config, st *store.Store, src source.Client, chat, embed llm.Provider, embeddingDim int) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		store:     st,
		src:       src,
		embedder:  NewEmbedder(embed, embeddingDim, cfg.EmbedBatchTokens),
		extractor: graph.NewExtractor(chat, cfg.ExtractTokenBudget),
		filter:    parser.DefaultTitleFilter,
	}
	if html, ok := src.(*source.HTMLSiteClient); ok {
		// The HTML parser needs the site root for same-site link filtering.
		o.siteBase = html.BaseURL()
	}
	return o
}

// SetTitleFilter replaces the default link filter.
func (o *Orchestrator) SetTitleFilter(f parser.TitleFilter) {
	if f != nil {
		o.filter = f
	}
}

// SetProgressFunc registers a progress callback.
func (o *Orchestrator) SetProgressFunc(f func(Progress)) {
	o.onProgress = f
}

// Run seeds the queue and drives expansion until target_articles is
// reached, the frontier is exhausted, or ctx is cancelled. In-flight
// articles finish after the target is hit; no new claims are issued.
func (o *Orchestrator) Run(ctx context.Context, seeds []string) error {
	if len(seeds) == 0 {
		return errors.New("expand: no seed articles")
	}
	for _, seed := range seeds {
		title := parser.NormalizeTitle(seed)
		if title == "" {
			continue
		}
		if err := o.store.UpsertArticle(ctx, title, "", 0, store.StateDiscovered); err != nil {
			return fmt.Errorf("seeding %q: %w", title, err)
		}
	}

	slog.Info("expand: starting run",
		"seeds", len(seeds), "target", o.cfg.TargetArticles,
		"workers", o.cfg.WorkerCount, "max_depth", o.cfg.MaxDepth)

	claims := make(chan store.ArticleRef)
	var inFlight atomic.Int64

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(claims)
		return o.dispatch(gctx, claims, &inFlight)
	})

	w := &worker{
		cfg:       o.cfg,
		store:     o.store,
		src:       o.src,
		embedder:  o.embedder,
		extractor: o.extractor,
		filter:    o.filter,
		siteBase:  o.siteBase,
	}
	for i := 0; i < o.cfg.WorkerCount; i++ {
		g.Go(func() error {
			for ref := range claims {
				err := w.process(gctx, ref)
				inFlight.Add(-1)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats, err := o.store.Stats(ctx)
	if err != nil {
		return err
	}
	o.emitProgress(stats)
	slog.Info("expand: run complete",
		"processed", stats.Processed, "failed", stats.Failed,
		"discovered_remaining", stats.Discovered)
	return nil
}

// dispatch claims batches and feeds workers. It stops once the target is
// reached or nothing remains claimable and nothing is in flight.
func (o *Orchestrator) dispatch(ctx context.Context, claims chan<- store.ArticleRef, inFlight *atomic.Int64) error {
	lastProgress := time.Time{}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stats, err := o.store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("expand: reading stats: %w", err)
		}
		if time.Since(lastProgress) >= time.Second {
			o.emitProgress(stats)
			lastProgress = time.Now()
		}

		if stats.Processed >= o.cfg.TargetArticles {
			return nil
		}

		// Claim only what is still needed, counting in-flight work, so the
		// run does not overshoot the target.
		limit := o.cfg.TargetArticles - stats.Processed - int(inFlight.Load())
		if limit > o.cfg.ClaimBatchSize {
			limit = o.cfg.ClaimBatchSize
		}
		if limit <= 0 {
			select {
			case <-time.After(idlePollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		refs, err := o.store.ClaimBatch(ctx, limit, time.Now(), o.cfg.HeartbeatTimeout)
		if err != nil {
			return fmt.Errorf("expand: claiming batch: %w", err)
		}

		if len(refs) == 0 {
			// Nothing claimable. If nothing is in flight and nothing is
			// waiting on a retry backoff, the frontier is exhausted.
			if inFlight.Load() == 0 && stats.Discovered == 0 && stats.Claimed == 0 {
				return nil
			}
			select {
			case <-time.After(idlePollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, ref := range refs {
			inFlight.Add(1)
			select {
			case claims <- ref:
			case <-ctx.Done():
				inFlight.Add(-1)
				return ctx.Err()
			}
		}
	}
}

func (o *Orchestrator) emitProgress(stats *store.Stats) {
	if o.onProgress == nil {
		return
	}
	o.onProgress(Progress{
		Processed:  stats.Processed,
		Target:     o.cfg.TargetArticles,
		Discovered: stats.Discovered,
		Claimed:    stats.Claimed,
		Loaded:     stats.Loaded,
		Failed:     stats.Failed,
	})
}
