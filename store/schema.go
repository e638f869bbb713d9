package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Articles double as graph nodes and work-queue entries. state drives the
-- expansion lifecycle: discovered -> claimed -> loaded -> processed | failed.
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY,
    title TEXT NOT NULL UNIQUE,
    url TEXT,
    category TEXT,
    word_count INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL DEFAULT 'discovered',
    depth INTEGER NOT NULL,
    claimed_at INTEGER,
    retry_count INTEGER NOT NULL DEFAULT 0,
    retry_at INTEGER NOT NULL DEFAULT 0,
    failure_reason TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Sections are owned by exactly one article (HAS_SECTION).
CREATE TABLE IF NOT EXISTS sections (
    id INTEGER PRIMARY KEY,
    article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    ordinal INTEGER NOT NULL,
    heading TEXT,
    level INTEGER NOT NULL,
    content TEXT NOT NULL,
    word_count INTEGER NOT NULL,
    UNIQUE(article_id, ordinal)
);

-- Section embeddings via sqlite-vec.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_sections USING vec0(
    section_id INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);

-- Article -> article references (LINKS_TO). Targets may be placeholder
-- articles in state 'discovered' with no sections yet.
CREATE TABLE IF NOT EXISTS links (
    source_article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    target_article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    PRIMARY KEY (source_article_id, target_article_id)
);

CREATE TABLE IF NOT EXISTS categories (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS article_categories (
    article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
    PRIMARY KEY (article_id, category_id)
);

-- Knowledge graph: entities, unique by (name, type), case-insensitive on
-- name so "Paris" and "paris" merge into the first-seen casing.
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL COLLATE NOCASE,
    entity_type TEXT NOT NULL,
    description TEXT,
    article_count INTEGER NOT NULL DEFAULT 0,
    UNIQUE(name, entity_type)
);

-- Section -> entity provenance (MENTIONS).
CREATE TABLE IF NOT EXISTS section_entities (
    section_id INTEGER NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    PRIMARY KEY (section_id, entity_id)
);

-- Entity -> entity edges (RELATES_TO).
CREATE TABLE IF NOT EXISTS relationships (
    id INTEGER PRIMARY KEY,
    source_entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    target_entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    predicate TEXT NOT NULL,
    UNIQUE(source_entity_id, target_entity_id, predicate)
);

-- Short factual statements attributed to a section (STATES).
CREATE TABLE IF NOT EXISTS facts (
    id INTEGER PRIMARY KEY,
    section_id INTEGER NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
    content TEXT NOT NULL,
    UNIQUE(section_id, content)
);

-- Query audit log
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    question TEXT NOT NULL,
    answer TEXT,
    query_type TEXT,
    sources JSON,
    prompt_tokens INTEGER DEFAULT 0,
    completion_tokens INTEGER DEFAULT 0,
    total_tokens INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_articles_state ON articles(state, depth, id);
CREATE INDEX IF NOT EXISTS idx_sections_article ON sections(article_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_article_id);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_section_entities_entity ON section_entities(entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_entity_id);
CREATE INDEX IF NOT EXISTS idx_facts_section ON facts(section_id);
`, embeddingDim)
}
