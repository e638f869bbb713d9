package wikigr

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wikigr/wikigr/retrieval"
)

const (
	metadataFile = "pack.json"
	packVersion  = 1
)

// Metadata is the pack.json record identifying a pack: the embedding
// model and dimension every vector in the pack was produced with, plus
// build counters refreshed after each expansion run.
type Metadata struct {
	PackID            string    `json:"pack_id"`
	Version           int       `json:"version"`
	EmbeddingModel    string    `json:"embedding_model"`
	EmbeddingDim      int       `json:"embedding_dim"`
	ArticleCount      int       `json:"article_count"`
	EntityCount       int       `json:"entity_count"`
	RelationshipCount int       `json:"relationship_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newMetadata(model string, dim int) *Metadata {
	now := time.Now().UTC()
	return &Metadata{
		PackID:         uuid.NewString(),
		Version:        packVersion,
		EmbeddingModel: model,
		EmbeddingDim:   dim,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// loadMetadata reads pack.json from a pack directory.
func loadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s has no %s", ErrPackNotFound, dir, metadataFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading pack metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing pack metadata: %w", err)
	}
	return &m, nil
}

// save writes pack.json atomically via a temp file rename.
func (m *Metadata) save(dir string) error {
	m.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, metadataFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing pack metadata: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, metadataFile)); err != nil {
		return fmt.Errorf("writing pack metadata: %w", err)
	}
	return nil
}

// LoadSeeds reads a seed list, one title per line. Blank lines and lines
// starting with # are skipped.
func LoadSeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()

	var seeds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return seeds, nil
}

// LoadExamples reads a JSON array of few-shot examples. Every entry must
// carry a question and an answer.
func LoadExamples(path string) ([]retrieval.Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening examples file: %w", err)
	}
	var examples []retrieval.Example
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("parsing examples file: %w", err)
	}
	for i, ex := range examples {
		if strings.TrimSpace(ex.Question) == "" || strings.TrimSpace(ex.Answer) == "" {
			return nil, fmt.Errorf("examples file: entry %d missing question or answer", i)
		}
	}
	return examples, nil
}
