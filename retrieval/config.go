// Package retrieval answers free-form questions over a pack: vector
// search, degree-aware reranking, multi-doc expansion, quality filtering,
// few-shot prompting, and a single LLM synthesis call.
package retrieval

// QueryType tags how an answer was produced.
type QueryType string

const (
	// QueryTypeVectorSearch is the normal path: pack context retrieved
	// and injected into synthesis.
	QueryTypeVectorSearch QueryType = "vector_search"

	// QueryTypeConfidenceGated means top-1 similarity fell below the
	// confidence threshold and the pack was bypassed entirely.
	QueryTypeConfidenceGated QueryType = "confidence_gated_fallback"

	// QueryTypeVectorFallback means vector search returned no candidates
	// at all.
	QueryTypeVectorFallback QueryType = "vector_fallback"

	// QueryTypeError means a provider call failed and the answer is the
	// user-safe error string.
	QueryTypeError QueryType = "error"
)

// Config holds the retrieval pipeline configuration.
type Config struct {
	// UseEnhancements is the master switch; when false, only vector
	// search, the confidence gate, and synthesis run.
	UseEnhancements bool `json:"use_enhancements" yaml:"use_enhancements"`

	EnableReranker     bool `json:"enable_reranker" yaml:"enable_reranker"`
	EnableMultiDoc     bool `json:"enable_multidoc" yaml:"enable_multidoc"`
	EnableFewShot      bool `json:"enable_fewshot" yaml:"enable_fewshot"`
	EnableCrossEncoder bool `json:"enable_cross_encoder" yaml:"enable_cross_encoder"`
	EnableMultiQuery   bool `json:"enable_multi_query" yaml:"enable_multi_query"`

	// Rerank combination weights; must sum to 1.
	VectorWeight float64 `json:"vector_weight" yaml:"vector_weight"`
	GraphWeight  float64 `json:"graph_weight" yaml:"graph_weight"`

	// NumDocs is the number of source articles to retrieve.
	NumDocs int `json:"num_docs" yaml:"num_docs"`

	// MaxSectionsPerArticle caps context sections per source article.
	MaxSectionsPerArticle int `json:"max_sections_per_article" yaml:"max_sections_per_article"`

	// ContextConfidenceThreshold gates the pack: below this top-1 cosine
	// similarity, synthesis runs without any pack context.
	ContextConfidenceThreshold float64 `json:"context_confidence_threshold" yaml:"context_confidence_threshold"`

	// ContentQualityThreshold drops sections scoring below it.
	ContentQualityThreshold float64 `json:"content_quality_threshold" yaml:"content_quality_threshold"`

	// StubWordCutoff: sections shorter than this always score zero.
	StubWordCutoff int `json:"stub_word_cutoff" yaml:"stub_word_cutoff"`

	// CandidateMultiplier sizes the initial pool: num_docs × multiplier.
	CandidateMultiplier int `json:"candidate_multiplier" yaml:"candidate_multiplier"`

	// SynthesisMaxTokens bounds the answer length.
	SynthesisMaxTokens int `json:"synthesis_max_tokens" yaml:"synthesis_max_tokens"`
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{
		UseEnhancements:            true,
		EnableReranker:             true,
		EnableMultiDoc:             true,
		EnableFewShot:              true,
		EnableCrossEncoder:         false,
		EnableMultiQuery:           false,
		VectorWeight:               0.6,
		GraphWeight:                0.4,
		NumDocs:                    5,
		MaxSectionsPerArticle:      3,
		ContextConfidenceThreshold: 0.5,
		ContentQualityThreshold:    0.3,
		StubWordCutoff:             20,
		CandidateMultiplier:        2,
		SynthesisMaxTokens:         1024,
	}
}
