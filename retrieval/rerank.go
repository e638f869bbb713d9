package retrieval

import (
	"context"
	"sort"

	"github.com/wikigr/wikigr/store"
)

// rankedArticle is one candidate source article with its best sections
// and combined rerank score.
type rankedArticle struct {
	Title      string
	Similarity float64 // best section cosine similarity
	Degree     int     // total in+out link degree
	Score      float64
	Sections   []store.SectionMatch
	// Neighbor marks articles added by multi-doc expansion rather than
	// retrieved directly.
	Neighbor bool
}

// CrossEncoder optionally re-scores question/passage pairs. Scores
// replace the vector similarity before the graph blend.
type CrossEncoder interface {
	Score(ctx context.Context, question string, passages []string) ([]float64, error)
}

// rerank blends vector similarity with min-max normalized link degree:
//
//	score = vectorWeight*similarity + graphWeight*normalizedDegree
//
// The input similarity ordering is only perturbed when degree differs,
// so well-connected hub articles rise over marginally closer leaves.
// Ties break on ascending title so results are stable across runs.
func rerank(arts []rankedArticle, vectorWeight, graphWeight float64) {
	if len(arts) == 0 {
		return
	}
	minDeg, maxDeg := arts[0].Degree, arts[0].Degree
	for _, a := range arts[1:] {
		if a.Degree < minDeg {
			minDeg = a.Degree
		}
		if a.Degree > maxDeg {
			maxDeg = a.Degree
		}
	}
	span := float64(maxDeg - minDeg)
	for i := range arts {
		norm := 0.0
		if span > 0 {
			norm = float64(arts[i].Degree-minDeg) / span
		}
		arts[i].Score = vectorWeight*arts[i].Similarity + graphWeight*norm
	}
	sortByScore(arts)
}

// sortByScore orders descending by score, ascending title on ties.
func sortByScore(arts []rankedArticle) {
	sort.SliceStable(arts, func(i, j int) bool {
		if arts[i].Score != arts[j].Score {
			return arts[i].Score > arts[j].Score
		}
		return arts[i].Title < arts[j].Title
	})
}

// sortBySimilarity orders descending by similarity, ascending title on
// ties. Used when the reranker is disabled.
func sortBySimilarity(arts []rankedArticle) {
	sort.SliceStable(arts, func(i, j int) bool {
		if arts[i].Similarity != arts[j].Similarity {
			return arts[i].Similarity > arts[j].Similarity
		}
		return arts[i].Title < arts[j].Title
	})
}

// applyCrossEncoder replaces each article's similarity with the cross
// encoder's score for its best section. Failures leave the vector
// similarities untouched.
func applyCrossEncoder(ctx context.Context, ce CrossEncoder, question string, arts []rankedArticle) {
	if ce == nil || len(arts) == 0 {
		return
	}
	passages := make([]string, len(arts))
	for i, a := range arts {
		if len(a.Sections) > 0 {
			passages[i] = a.Sections[0].Content
		}
	}
	scores, err := ce.Score(ctx, question, passages)
	if err != nil || len(scores) != len(arts) {
		return
	}
	for i := range arts {
		arts[i].Similarity = scores[i]
	}
}
