// Package graph drives LLM extraction of entities, relations, and facts
// from parsed articles.
package graph

// Entity type constants used during extraction and storage.
const (
	EntityPerson   = "person"
	EntityOrg      = "organization"
	EntityLocation = "location"
	EntityEvent    = "event"
	EntityWork     = "work"
	EntityConcept  = "concept"
)

// ExtractedEntity is what the LLM returns from entity extraction.
type ExtractedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ExtractedRelation is what the LLM returns from relation extraction.
// Predicate is a short verb phrase connecting the two entity names.
type ExtractedRelation struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Predicate string `json:"predicate"`
}

// ExtractedFact is a short factual sentence attributed to one section of
// the article, identified by its ordinal.
type ExtractedFact struct {
	Text    string `json:"text"`
	Section int    `json:"section"`
}

// Extraction holds the validated structured output for one article.
type Extraction struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
	Facts     []ExtractedFact     `json:"facts"`
}
