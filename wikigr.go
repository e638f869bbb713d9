// Package wikigr builds and queries knowledge packs: self-contained
// SQLite databases holding articles, section embeddings, and an entity
// graph extracted from Wikipedia or an HTML documentation site.
package wikigr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wikigr/wikigr/expand"
	"github.com/wikigr/wikigr/llm"
	"github.com/wikigr/wikigr/retrieval"
	"github.com/wikigr/wikigr/source"
	"github.com/wikigr/wikigr/store"
)

const (
	storeFile    = "pack.db"
	examplesFile = "examples.json"
)

// Pack is an open knowledge pack. It is safe for concurrent queries;
// Expand runs must not overlap with each other.
type Pack struct {
	cfg   Config
	meta  *Metadata
	store *store.Store
	chat  llm.Provider
	embed llm.Provider
	agent *retrieval.Agent

	onProgress func(expand.Progress)

	mu     sync.Mutex
	closed bool
}

// Create initializes a new pack in cfg.PackDir. The directory is created
// if missing; an existing pack there is an error.
func Create(cfg Config) (*Pack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(cfg.PackDir, metadataFile)); err == nil {
		return nil, fmt.Errorf("pack already exists in %s", cfg.PackDir)
	}
	if err := os.MkdirAll(cfg.PackDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating pack dir: %w", err)
	}

	meta := newMetadata(cfg.Embedding.Model, cfg.EmbeddingDim)
	if err := meta.save(cfg.PackDir); err != nil {
		return nil, err
	}
	return openPack(cfg, meta)
}

// Open opens an existing pack. The configured embedding model and
// dimension must match what the pack was built with; a mismatch would
// make every stored vector incomparable to new queries, so it fails
// fast with ErrDimensionMismatch.
func Open(cfg Config) (*Pack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	meta, err := loadMetadata(cfg.PackDir)
	if err != nil {
		return nil, err
	}
	if meta.EmbeddingDim != cfg.EmbeddingDim {
		return nil, fmt.Errorf("%w: pack built at dim %d, config says %d",
			ErrDimensionMismatch, meta.EmbeddingDim, cfg.EmbeddingDim)
	}
	if meta.EmbeddingModel != cfg.Embedding.Model {
		return nil, fmt.Errorf("%w: pack built with %q, config says %q",
			ErrDimensionMismatch, meta.EmbeddingModel, cfg.Embedding.Model)
	}
	return openPack(cfg, meta)
}

func openPack(cfg Config, meta *Metadata) (*Pack, error) {
	st, err := store.New(filepath.Join(cfg.PackDir, storeFile), cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening pack store: %w", err)
	}
	chat, err := llm.NewProvider(cfg.Chat)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("chat provider: %w", err)
	}
	embed, err := llm.NewProvider(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	p := &Pack{cfg: cfg, meta: meta, store: st, chat: chat, embed: embed}
	p.agent = retrieval.NewAgent(st, chat, embed, cfg.Retrieval)

	// A missing examples file just disables few-shot prompting; a broken
	// one is a configuration error and fails the open.
	examples, err := LoadExamples(filepath.Join(cfg.PackDir, examplesFile))
	switch {
	case err == nil:
		p.agent.SetExamples(examples)
	case errors.Is(err, os.ErrNotExist):
	default:
		st.Close()
		return nil, err
	}
	return p, nil
}

// SetProgressFunc registers a callback invoked during Expand runs.
func (p *Pack) SetProgressFunc(f func(expand.Progress)) {
	p.onProgress = f
}

// Expand grows the pack from the given seed titles until the configured
// target is reached or the link frontier drains, then refreshes the
// metadata counters.
func (p *Pack) Expand(ctx context.Context, seeds []string) error {
	if err := p.check(); err != nil {
		return err
	}
	if len(seeds) == 0 {
		return ErrNoSeeds
	}

	src, err := source.New(p.cfg.Source, p.cfg.SourceBaseURL, p.cfg.SourceRPM, p.cfg.SourceBurst)
	if err != nil {
		return err
	}
	o := expand.New(p.cfg.Expansion, p.store, src, p.chat, p.embed, p.cfg.EmbeddingDim)
	if p.onProgress != nil {
		o.SetProgressFunc(p.onProgress)
	}
	if err := o.Run(ctx, seeds); err != nil {
		return err
	}

	stats, err := p.store.Stats(ctx)
	if err != nil {
		return err
	}
	p.meta.ArticleCount = stats.Processed
	p.meta.EntityCount = stats.Entities
	p.meta.RelationshipCount = stats.Relations
	return p.meta.save(p.cfg.PackDir)
}

// Query answers a question over the pack.
func (p *Pack) Query(ctx context.Context, question string) (*retrieval.Result, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return p.agent.Query(ctx, question)
}

// Stats reports pack object counts and queue states.
func (p *Pack) Stats(ctx context.Context) (*store.Stats, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return p.store.Stats(ctx)
}

// Metadata returns a copy of the pack's metadata record.
func (p *Pack) Metadata() Metadata {
	return *p.meta
}

// Close releases the underlying store. The pack cannot be used after.
func (p *Pack) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.store.Close()
}

func (p *Pack) check() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrStoreClosed
	}
	return nil
}
