package wikigr

import (
	"fmt"
	"math"
	"time"

	"github.com/wikigr/wikigr/expand"
	"github.com/wikigr/wikigr/llm"
	"github.com/wikigr/wikigr/retrieval"
)

// Config holds all configuration for a WikiGR pack.
type Config struct {
	// PackDir is the pack directory on disk. It holds the graph store,
	// the metadata record (pack.json), the seed list, and the optional
	// few-shot examples file.
	PackDir string `json:"pack_dir" yaml:"pack_dir"`

	// LLM providers. Chat drives extraction, paraphrase, and synthesis;
	// Embedding produces section and query vectors.
	Chat      llm.Config `json:"chat" yaml:"chat"`
	Embedding llm.Config `json:"embedding" yaml:"embedding"`

	// EmbeddingDim must match the embedding model. Every vector in a pack
	// comes from the same model at the same dimension.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// Source selects where articles are fetched from: "wikipedia" (the
	// MediaWiki action API) or "html" (a documentation site crawler).
	Source string `json:"source" yaml:"source"`

	// SourceBaseURL overrides the source endpoint. For "wikipedia" this is
	// the api.php URL; for "html" the site root the crawler stays within.
	SourceBaseURL string `json:"source_base_url" yaml:"source_base_url"`

	// SourceRPM and SourceBurst configure the polite rate limiter on the
	// source client.
	SourceRPM   int `json:"source_rpm" yaml:"source_rpm"`
	SourceBurst int `json:"source_burst" yaml:"source_burst"`

	// Expansion controls the autonomous expansion run.
	Expansion expand.Config `json:"expansion" yaml:"expansion"`

	// Retrieval controls the query-time pipeline.
	Retrieval retrieval.Config `json:"retrieval" yaml:"retrieval"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
// The synthesis model default follows the local-first setup (Ollama with
// llama3.1:8b); the embedding default is nomic-embed-text at 768 dimensions.
func DefaultConfig() Config {
	return Config{
		Chat: llm.Config{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: llm.Config{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		EmbeddingDim: 768,
		Source:       "wikipedia",
		SourceRPM:    30,
		SourceBurst:  5,
		Expansion:    expand.DefaultConfig(),
		Retrieval:    retrieval.DefaultConfig(),
	}
}

// Validate rejects configurations that would corrupt a pack or stall a run.
// It is called before expansion starts and before the retrieval agent is
// built; a failure here is a start-up error, never a mid-run one.
func (c *Config) Validate() error {
	if c.PackDir == "" {
		return fmt.Errorf("%w: pack_dir is required", ErrInvalidConfig)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: embedding_dim must be positive, got %d", ErrInvalidConfig, c.EmbeddingDim)
	}
	switch c.Source {
	case "wikipedia", "html":
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, c.Source)
	}
	if sum := c.Retrieval.VectorWeight + c.Retrieval.GraphWeight; math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: vector_weight + graph_weight must equal 1, got %.3f", ErrInvalidConfig, sum)
	}
	if c.Expansion.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	if c.Expansion.HeartbeatTimeout < time.Second {
		return fmt.Errorf("%w: heartbeat_timeout must be at least 1s", ErrInvalidConfig)
	}
	if c.Expansion.ClaimBatchSize <= 0 {
		return fmt.Errorf("%w: claim_batch_size must be positive", ErrInvalidConfig)
	}
	return nil
}
