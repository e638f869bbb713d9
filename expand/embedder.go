package expand

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/wikigr/wikigr/llm"
)

// Embedder batches section texts through the embedding provider, sized by
// an estimated token budget so provider limits are respected.
type Embedder struct {
	provider    llm.Provider
	dim         int
	batchTokens int
}

// NewEmbedder wraps an embedding provider. Every vector is checked
// against dim; a mismatch is a hard error since mixed dimensions corrupt
// the pack index.
func NewEmbedder(provider llm.Provider, dim, batchTokens int) *Embedder {
	if batchTokens <= 0 {
		batchTokens = 2000
	}
	return &Embedder{provider: provider, dim: dim, batchTokens: batchTokens}
}

// Dimension returns the configured embedding dimension.
func (e *Embedder) Dimension() int {
	return e.dim
}

func estimateTokens(text string) int {
	return int(math.Ceil(float64(len(strings.Fields(text))) * 1.3))
}

// EmbedTexts embeds all texts in order, splitting into token-budget
// batches. A failed batch falls back to per-text embedding so one bad
// input does not sink its whole batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); {
		end := start
		used := 0
		for end < len(texts) {
			cost := estimateTokens(texts[end])
			if end > start && used+cost > e.batchTokens {
				break
			}
			used += cost
			end++
		}

		batch := texts[start:end]
		vecs, err := e.provider.Embed(ctx, batch)
		if err != nil || len(vecs) != len(batch) {
			slog.Warn("expand: batch embed failed, retrying per text",
				"batch_size", len(batch), "error", err)
			vecs, err = e.embedIndividually(ctx, batch)
			if err != nil {
				return nil, err
			}
		}
		for i, v := range vecs {
			if len(v) != e.dim {
				return nil, fmt.Errorf("embedding %d has %d dims, want %d",
					start+i, len(v), e.dim)
			}
		}
		out = append(out, vecs...)
		start = end
	}
	return out, nil
}

func (e *Embedder) embedIndividually(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vecs, err := e.provider.Embed(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("embedding text %d: got %d vectors", i, len(vecs))
		}
		out = append(out, vecs[0])
	}
	return out, nil
}
