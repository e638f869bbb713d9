package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wikigr/wikigr/llm"
)

// fewShotTopK is how many worked examples get prepended to synthesis.
const fewShotTopK = 3

// Example is a worked question/answer pair used for few-shot prompting.
type Example struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources,omitempty"`
}

// fewShotIndex holds examples with lazily computed question embeddings.
// Embeddings are computed once on first use and cached for the life of
// the agent.
type fewShotIndex struct {
	examples []Example

	mu         sync.Mutex
	embeddings [][]float32
}

func newFewShotIndex(examples []Example) *fewShotIndex {
	return &fewShotIndex{examples: examples}
}

// selectTop returns the examples whose questions are most similar to the
// query embedding, best first. Ties break on example order.
func (f *fewShotIndex) selectTop(ctx context.Context, embed llm.Provider, queryEmbedding []float32) ([]Example, error) {
	if f == nil || len(f.examples) == 0 {
		return nil, nil
	}
	if err := f.ensureEmbeddings(ctx, embed); err != nil {
		return nil, err
	}

	type scored struct {
		idx int
		sim float64
	}
	ranked := make([]scored, len(f.examples))
	for i := range f.examples {
		ranked[i] = scored{idx: i, sim: cosine(queryEmbedding, f.embeddings[i])}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].sim > ranked[j].sim
	})

	n := fewShotTopK
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]Example, n)
	for i := 0; i < n; i++ {
		out[i] = f.examples[ranked[i].idx]
	}
	return out, nil
}

func (f *fewShotIndex) ensureEmbeddings(ctx context.Context, embed llm.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embeddings != nil {
		return nil
	}
	questions := make([]string, len(f.examples))
	for i, ex := range f.examples {
		questions[i] = ex.Question
	}
	vecs, err := embed.Embed(ctx, questions)
	if err != nil {
		return fmt.Errorf("embedding examples: %w", err)
	}
	if len(vecs) != len(questions) {
		return fmt.Errorf("embedding examples: got %d vectors for %d questions", len(vecs), len(questions))
	}
	f.embeddings = vecs
	return nil
}
