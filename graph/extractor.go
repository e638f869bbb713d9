package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/wikigr/wikigr/llm"
)

// estimateTokens approximates token count using a word-based heuristic.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

// defaultTokenBudget bounds how much article text goes into one extraction
// prompt. Sections are dropped tail-first when over budget.
const defaultTokenBudget = 3000

// entityFactPrompt asks the LLM for entities and facts in one atomic call.
// Kept deliberately narrow for 7B-class models.
const entityFactPrompt = `You are an entity and fact extraction engine for encyclopedia articles.
Given the article text, extract all notable entities and short factual statements.

ENTITY TYPES (use exactly these values):
- person       : a named individual
- organization : a company, institution, government body, or group
- location     : a place, country, city, or geographic feature
- event        : a named historical or cultural event
- work         : a book, film, paper, artwork, or other created work
- concept      : an abstract idea, field, theory, or anything else

Return a JSON object with exactly two keys:
  "entities" : array of {"name": string, "type": string, "description": string}
  "facts"    : array of {"text": string, "section": number}

Rules:
- Entity names keep the casing used in the article.
- "section" is the zero-based index of the section the fact comes from, as numbered in the text.
- Facts are single self-contained sentences supported by the text.
- Only include entities and facts clearly supported by the text.
- If there are none, return empty arrays.
- Do NOT include any text outside the JSON object.

EXAMPLE:

Input:
[0] Marie Curie was a Polish physicist who discovered radium.
[1] Legacy: She won two Nobel Prizes.
Output:
{"entities": [{"name": "Marie Curie", "type": "person", "description": "Polish physicist"}, {"name": "radium", "type": "concept", "description": "Radioactive element"}, {"name": "Nobel Prize", "type": "concept", "description": "International award"}], "facts": [{"text": "Marie Curie discovered radium.", "section": 0}, {"text": "Marie Curie won two Nobel Prizes.", "section": 1}]}

ARTICLE: %s

TEXT:
%s`

// relationPrompt asks the LLM for relations between already-extracted
// entities. The fixed entity set keeps this second call simple.
const relationPrompt = `You are a relation extraction engine for encyclopedia articles.
Given the text and a list of known entities, extract relations between them.

KNOWN ENTITIES:
%s

Return a JSON object with exactly one key:
  "relations" : array of {"source": string, "target": string, "predicate": string}

Rules:
- Source and target must be names from the KNOWN ENTITIES list above.
- Predicate is a short lowercase verb phrase ("discovered", "born in", "part of").
- Only include relations clearly supported by the text.
- If there are none, return an empty array.
- Do NOT include any text outside the JSON object.

EXAMPLE:

Input entities: ["Marie Curie", "radium", "Paris"]
Input text: "Marie Curie discovered radium while working in Paris."
Output:
{"relations": [{"source": "Marie Curie", "target": "radium", "predicate": "discovered"}, {"source": "Marie Curie", "target": "Paris", "predicate": "worked in"}]}

TEXT:
%s`

// strictSuffix is appended to a prompt when the first response failed to
// parse as the expected JSON shape.
const strictSuffix = `

IMPORTANT: Your previous response was not valid JSON. Respond with ONLY the JSON object described above. No prose, no markdown fences, no explanations.`

// SectionInput is one section of article text fed to the extractor.
type SectionInput struct {
	Ordinal int
	Heading string
	Text    string
}

// Extractor elicits structured entities, relations, and facts from article
// text via an external chat model.
type Extractor struct {
	chat        llm.Provider
	tokenBudget int
}

// NewExtractor creates an extractor. tokenBudget <= 0 uses the default.
func NewExtractor(chat llm.Provider, tokenBudget int) *Extractor {
	if tokenBudget <= 0 {
		tokenBudget = defaultTokenBudget
	}
	return &Extractor{chat: chat, tokenBudget: tokenBudget}
}

// Extract runs the two-step extraction pipeline over an article. Malformed
// LLM output triggers one stricter retry per step, then degrades to an
// empty result for that step; Extract itself only fails on request errors
// the caller should retry (transport, context).
func (e *Extractor) Extract(ctx context.Context, title string, sections []SectionInput) (*Extraction, error) {
	text, dropped := renderSections(sections, e.tokenBudget)
	if dropped > 0 {
		slog.Debug("graph: truncated article for extraction",
			"article", title, "dropped_sections", dropped)
	}
	if strings.TrimSpace(text) == "" {
		return &Extraction{}, nil
	}

	result := &Extraction{}

	var ef struct {
		Entities []ExtractedEntity `json:"entities"`
		Facts    []ExtractedFact   `json:"facts"`
	}
	prompt := fmt.Sprintf(entityFactPrompt, title, text)
	if err := e.chatJSON(ctx, prompt, &ef); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("graph: entity extraction unusable, using empty result",
			"article", title, "error", err)
		return result, nil
	}
	result.Entities = dedupeEntities(ef.Entities)
	result.Facts = cleanFacts(ef.Facts, len(sections))

	if len(result.Entities) >= 2 {
		names := make([]string, 0, len(result.Entities))
		known := make(map[string]bool, len(result.Entities))
		for _, en := range result.Entities {
			names = append(names, en.Name)
			known[strings.ToLower(en.Name)] = true
		}
		namesJSON, _ := json.Marshal(names)

		var rel struct {
			Relations []ExtractedRelation `json:"relations"`
		}
		prompt = fmt.Sprintf(relationPrompt, string(namesJSON), text)
		if err := e.chatJSON(ctx, prompt, &rel); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("graph: relation extraction unusable, keeping entities only",
				"article", title, "error", err)
		} else {
			for _, r := range rel.Relations {
				r.Source = strings.TrimSpace(r.Source)
				r.Target = strings.TrimSpace(r.Target)
				r.Predicate = strings.TrimSpace(r.Predicate)
				if r.Source == "" || r.Target == "" ||
					!known[strings.ToLower(r.Source)] || !known[strings.ToLower(r.Target)] ||
					strings.EqualFold(r.Source, r.Target) {
					continue
				}
				result.Relations = append(result.Relations, r)
			}
		}
	}

	return result, nil
}

// chatJSON sends a prompt expecting a JSON object and unmarshals it into
// out. A malformed response gets one retry with a stricter prompt.
func (e *Extractor) chatJSON(ctx context.Context, prompt string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		p := prompt
		if attempt > 0 {
			p += strictSuffix
		}
		resp, err := e.chat.Chat(ctx, llm.ChatRequest{
			Messages:       []llm.Message{{Role: "user", Content: p}},
			Temperature:    0.0,
			ResponseFormat: "json_object",
		})
		if err != nil {
			return err
		}
		jsonStr, err := extractJSON(resp.Content)
		if err != nil {
			lastErr = err
			continue
		}
		if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
			lastErr = fmt.Errorf("unmarshalling extraction result: %w", err)
			continue
		}
		return nil
	}
	return lastErr
}

// renderSections joins sections into a numbered prompt body, dropping
// sections tail-first once the token budget is exceeded. Returns the text
// and the number of dropped sections.
func renderSections(sections []SectionInput, budget int) (string, int) {
	var b strings.Builder
	used := 0
	included := 0
	for _, s := range sections {
		line := fmt.Sprintf("[%d] ", s.Ordinal)
		if s.Heading != "" {
			line += s.Heading + ": "
		}
		line += s.Text
		cost := estimateTokens(line)
		if included > 0 && used+cost > budget {
			break
		}
		if included == 0 && cost > budget {
			// Keep at least the lead, trimmed to budget by words.
			words := strings.Fields(line)
			keep := int(float64(budget) / 1.3)
			if keep < 1 {
				keep = 1
			}
			if keep < len(words) {
				line = strings.Join(words[:keep], " ")
			}
			cost = estimateTokens(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
		used += cost
		included++
	}
	return b.String(), len(sections) - included
}

// dedupeEntities trims names, fills empty types, and drops duplicates by
// (lower(name), type). Original casing is preserved, first occurrence wins.
func dedupeEntities(entities []ExtractedEntity) []ExtractedEntity {
	seen := make(map[string]bool, len(entities))
	out := entities[:0]
	for _, e := range entities {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			continue
		}
		e.Type = strings.TrimSpace(strings.ToLower(e.Type))
		if e.Type == "" {
			e.Type = EntityConcept
		}
		key := strings.ToLower(e.Name) + "\x00" + e.Type
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// cleanFacts trims fact text and clamps section ordinals into range.
func cleanFacts(facts []ExtractedFact, sectionCount int) []ExtractedFact {
	out := facts[:0]
	for _, f := range facts {
		f.Text = strings.TrimSpace(f.Text)
		if f.Text == "" {
			continue
		}
		if f.Section < 0 || f.Section >= sectionCount {
			f.Section = 0
		}
		out = append(out, f)
	}
	return out
}

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON attempts to find a valid JSON object in the LLM response text.
// It handles common LLM quirks: markdown code blocks, text before/after JSON.
func extractJSON(raw string) (string, error) {
	// Strip markdown code blocks first.
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}

	raw = strings.TrimSpace(raw)

	// If it already starts with '{', try as-is.
	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	// Find the first '{' and last '}' to extract the JSON object.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}

	return "", fmt.Errorf("no JSON object found in response")
}
