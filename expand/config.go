// Package expand drives articles from discovered to processed: claiming
// work, fetching and parsing content, embedding sections, and running the
// LLM extractor, until a stop condition is met.
package expand

import "time"

// Config controls an expansion run.
type Config struct {
	// TargetArticles stops the run once this many articles are processed.
	TargetArticles int `json:"target_articles" yaml:"target_articles"`

	// MaxDepth bounds link discovery; no placeholder is created beyond it.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// WorkerCount is the number of parallel pipeline workers.
	WorkerCount int `json:"worker_count" yaml:"worker_count"`

	// ClaimBatchSize is how many articles the dispatcher claims at once.
	ClaimBatchSize int `json:"claim_batch_size" yaml:"claim_batch_size"`

	// HeartbeatTimeout is how long a silent claim stays exclusive. Workers
	// refresh their claims at a third of this interval.
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`

	// MaxRetries caps transient failures per article before it is failed.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// LinkBudgetPerArticle caps new discoveries created per source article,
	// preventing hub pages from exploding the frontier.
	LinkBudgetPerArticle int `json:"link_budget_per_article" yaml:"link_budget_per_article"`

	// MinArticleWords marks shorter articles failed with reason
	// "thin content".
	MinArticleWords int `json:"min_article_words" yaml:"min_article_words"`

	// Per-stage timeouts.
	FetchTimeout   time.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
	EmbedTimeout   time.Duration `json:"embed_timeout" yaml:"embed_timeout"`
	ExtractTimeout time.Duration `json:"extract_timeout" yaml:"extract_timeout"`

	// EmbedBatchTokens sizes embedding batches by estimated tokens.
	EmbedBatchTokens int `json:"embed_batch_tokens" yaml:"embed_batch_tokens"`

	// ExtractTokenBudget bounds article text per extraction prompt.
	ExtractTokenBudget int `json:"extract_token_budget" yaml:"extract_token_budget"`
}

// DefaultConfig returns expansion defaults sized for a local setup.
func DefaultConfig() Config {
	return Config{
		TargetArticles:       100,
		MaxDepth:             2,
		WorkerCount:          4,
		ClaimBatchSize:       8,
		HeartbeatTimeout:     60 * time.Second,
		MaxRetries:           3,
		LinkBudgetPerArticle: 50,
		MinArticleWords:      200,
		FetchTimeout:         30 * time.Second,
		EmbedTimeout:         60 * time.Second,
		ExtractTimeout:       120 * time.Second,
		EmbedBatchTokens:     2000,
		ExtractTokenBudget:   3000,
	}
}
