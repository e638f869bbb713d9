package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/wikigr/wikigr/llm"
	"github.com/wikigr/wikigr/store"
)

// maxParaphraseInput bounds the question text sent to the paraphrase
// call so an abusive input cannot blow the prompt budget.
const maxParaphraseInput = 500

// Result is the answer to one query.
type Result struct {
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	QueryType QueryType `json:"query_type"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Agent answers questions over a pack. It is safe for concurrent use.
type Agent struct {
	store *store.Store
	chat  llm.Provider
	embed llm.Provider
	cfg   Config

	fewshot *fewShotIndex
	cross   CrossEncoder
}

// NewAgent builds a retrieval agent over an open store.
func NewAgent(st *store.Store, chat, embed llm.Provider, cfg Config) *Agent {
	return &Agent{store: st, chat: chat, embed: embed, cfg: cfg}
}

// SetExamples installs worked examples for few-shot prompting. Their
// embeddings are computed lazily on the first query.
func (a *Agent) SetExamples(examples []Example) {
	a.fewshot = newFewShotIndex(examples)
}

// SetCrossEncoder installs an optional cross encoder for reranking.
func (a *Agent) SetCrossEncoder(ce CrossEncoder) {
	a.cross = ce
}

// Query runs the full retrieval pipeline and returns a synthesized,
// source-cited answer. Identical questions over an unchanged pack
// produce identical context orderings.
func (a *Agent) Query(ctx context.Context, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("retrieval: empty question")
	}

	queries := []string{question}
	if a.cfg.UseEnhancements && a.cfg.EnableMultiQuery {
		queries = append(queries, a.paraphrase(ctx, question)...)
	}

	embeddings, err := a.embed.Embed(ctx, queries)
	if err != nil {
		return a.providerFailure(ctx, question, "embedding failed", err)
	}
	if len(embeddings) == 0 {
		return a.providerFailure(ctx, question, "embedding failed",
			fmt.Errorf("no vectors returned"))
	}

	pool, err := a.gatherCandidates(ctx, embeddings)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return a.answerWithoutContext(ctx, question, QueryTypeVectorFallback)
	}

	best := 0.0
	for _, m := range pool {
		if m.Similarity > best {
			best = m.Similarity
		}
	}
	// The confidence gate is unconditional: weak retrieval must never
	// leak misleading context into the answer.
	if best < a.cfg.ContextConfidenceThreshold {
		slog.Info("retrieval: confidence gate tripped",
			"best_similarity", best, "threshold", a.cfg.ContextConfidenceThreshold)
		return a.answerWithoutContext(ctx, question, QueryTypeConfidenceGated)
	}

	arts, err := a.groupByArticle(ctx, pool)
	if err != nil {
		return nil, err
	}

	if a.cfg.UseEnhancements && a.cfg.EnableCrossEncoder && a.cross != nil {
		applyCrossEncoder(ctx, a.cross, question, arts)
	}
	if a.cfg.UseEnhancements && a.cfg.EnableReranker {
		rerank(arts, a.cfg.VectorWeight, a.cfg.GraphWeight)
	} else {
		sortBySimilarity(arts)
	}
	if len(arts) > a.cfg.NumDocs {
		arts = arts[:a.cfg.NumDocs]
	}

	if a.cfg.UseEnhancements && a.cfg.EnableMultiDoc {
		arts = a.expandMultiDoc(ctx, arts)
	}

	if a.cfg.UseEnhancements {
		arts = a.applyQualityFilter(ctx, question, arts)
	}

	var examples []Example
	if a.cfg.UseEnhancements && a.cfg.EnableFewShot {
		examples, err = a.fewshot.selectTop(ctx, a.embed, embeddings[0])
		if err != nil {
			slog.Warn("retrieval: few-shot selection failed", "error", err)
			examples = nil
		}
	}

	prompt := buildSynthesisPrompt(question, examples, arts)
	resp, err := a.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: a.cfg.SynthesisMaxTokens,
	})
	if err != nil {
		return a.providerFailure(ctx, question, "synthesis failed", err)
	}

	sources := make([]string, len(arts))
	for i, art := range arts {
		sources[i] = art.Title
	}
	res := &Result{
		Answer:           resp.Content,
		Sources:          sources,
		QueryType:        QueryTypeVectorSearch,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}
	a.logQuery(ctx, question, res)
	return res, nil
}

// gatherCandidates runs one vector search per query embedding and merges
// the results by section, keeping each section's best similarity.
func (a *Agent) gatherCandidates(ctx context.Context, embeddings [][]float32) ([]store.SectionMatch, error) {
	k := a.cfg.NumDocs * a.cfg.CandidateMultiplier
	if k < 1 {
		k = a.cfg.NumDocs
	}

	bySection := make(map[int64]store.SectionMatch)
	for _, emb := range embeddings {
		matches, err := a.store.VectorSearch(ctx, emb, k)
		if err != nil {
			return nil, fmt.Errorf("retrieval: vector search: %w", err)
		}
		for _, m := range matches {
			if prev, ok := bySection[m.SectionID]; !ok || m.Similarity > prev.Similarity {
				bySection[m.SectionID] = m
			}
		}
	}

	pool := make([]store.SectionMatch, 0, len(bySection))
	for _, m := range bySection {
		pool = append(pool, m)
	}
	return pool, nil
}

// groupByArticle collects candidate sections per article, keeps the top
// sections of each, and attaches the article's link degree.
func (a *Agent) groupByArticle(ctx context.Context, pool []store.SectionMatch) ([]rankedArticle, error) {
	byArticle := make(map[string][]store.SectionMatch)
	for _, m := range pool {
		byArticle[m.ArticleTitle] = append(byArticle[m.ArticleTitle], m)
	}

	arts := make([]rankedArticle, 0, len(byArticle))
	for title, sections := range byArticle {
		sort.SliceStable(sections, func(i, j int) bool {
			if sections[i].Similarity != sections[j].Similarity {
				return sections[i].Similarity > sections[j].Similarity
			}
			return sections[i].Ordinal < sections[j].Ordinal
		})
		if len(sections) > a.cfg.MaxSectionsPerArticle {
			sections = sections[:a.cfg.MaxSectionsPerArticle]
		}

		deg, err := a.store.Degree(ctx, title)
		if err != nil {
			return nil, fmt.Errorf("retrieval: degree of %q: %w", title, err)
		}
		arts = append(arts, rankedArticle{
			Title:      title,
			Similarity: sections[0].Similarity,
			Degree:     deg,
			Sections:   sections,
		})
	}
	return arts, nil
}

// applyQualityFilter drops low-value sections unconditionally; articles
// left with nothing are removed. Only when the filter wipes out every
// section of every article does it fall back to full article content, so
// the agent never synthesizes from an empty context it retrieved.
func (a *Agent) applyQualityFilter(ctx context.Context, question string, arts []rankedArticle) []rankedArticle {
	keywords := extractKeywords(question)
	survived := false
	for i := range arts {
		arts[i].Sections = filterQuality(arts[i].Sections, keywords,
			a.cfg.ContentQualityThreshold, a.cfg.StubWordCutoff)
		if len(arts[i].Sections) > 0 {
			survived = true
		}
	}

	if !survived {
		slog.Info("retrieval: quality filter wiped context, using full articles")
		for i := range arts {
			full, err := a.storedSections(ctx, arts[i].Title)
			if err == nil && len(full) > 0 {
				arts[i].Sections = full
			}
		}
	}

	kept := arts[:0]
	for _, art := range arts {
		if len(art.Sections) > 0 {
			kept = append(kept, art)
		}
	}
	return kept
}

// paraphrase asks the chat model for alternate phrasings of the
// question. Failures are non-fatal; retrieval proceeds with the original
// question alone.
func (a *Agent) paraphrase(ctx context.Context, question string) []string {
	input := question
	if len(input) > maxParaphraseInput {
		cut := maxParaphraseInput
		for cut > 0 && !utf8.RuneStart(input[cut]) {
			cut--
		}
		input = input[:cut]
	}
	resp, err := a.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{{
			Role: "user",
			Content: "Rewrite the following question in 2 different ways that keep its meaning. " +
				"Reply with one rewrite per line and nothing else.\n\n" + input,
		}},
		MaxTokens: 200,
	})
	if err != nil {
		slog.Warn("retrieval: paraphrase failed", "error", err)
		return nil
	}
	var out []string
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len(out) < 2 {
			out = append(out, line)
		}
	}
	return out
}

// answerWithoutContext handles the gated and empty-retrieval paths: the
// model answers alone and the result carries no sources.
func (a *Agent) answerWithoutContext(ctx context.Context, question string, qt QueryType) (*Result, error) {
	resp, err := a.chat.Chat(ctx, llm.ChatRequest{
		Messages:  []llm.Message{{Role: "user", Content: noContextPrompt(question)}},
		MaxTokens: a.cfg.SynthesisMaxTokens,
	})
	if err != nil {
		return a.providerFailure(ctx, question, "synthesis failed", err)
	}
	res := &Result{
		Answer:           resp.Content,
		Sources:          []string{},
		QueryType:        qt,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}
	a.logQuery(ctx, question, res)
	return res, nil
}

// providerFailure turns an LLM failure into a user-safe result. The
// agent never raises on provider errors; the caller always gets an
// answer string it can show.
func (a *Agent) providerFailure(ctx context.Context, question, kind string, err error) (*Result, error) {
	slog.Error("retrieval: provider failure", "kind", kind, "error", err)
	res := &Result{
		Answer:    "Unable to answer: " + kind,
		Sources:   []string{},
		QueryType: QueryTypeError,
	}
	a.logQuery(ctx, question, res)
	return res, nil
}

// logQuery records the exchange in the pack's audit log. Logging is best
// effort and never fails the query.
func (a *Agent) logQuery(ctx context.Context, question string, res *Result) {
	err := a.store.LogQuery(ctx, store.QueryLog{
		Question:         question,
		Answer:           res.Answer,
		QueryType:        string(res.QueryType),
		Sources:          res.Sources,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		TotalTokens:      res.TotalTokens,
	})
	if err != nil {
		slog.Warn("retrieval: query log write failed", "error", err)
	}
}
