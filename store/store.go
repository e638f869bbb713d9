package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// State is the lifecycle state of an article in the expansion queue.
type State string

const (
	StateDiscovered State = "discovered"
	StateClaimed    State = "claimed"
	StateLoaded     State = "loaded"
	StateProcessed  State = "processed"
	StateFailed     State = "failed"
)

// stateRank orders the forward lifecycle. Upserts never move an article
// backwards along this ordering.
var stateRank = map[State]int{
	StateDiscovered: 0,
	StateClaimed:    1,
	StateLoaded:     2,
	StateProcessed:  3,
	StateFailed:     3,
}

// Article represents a row in the articles table.
type Article struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	Category      string `json:"category"`
	WordCount     int    `json:"word_count"`
	State         State  `json:"state"`
	Depth         int    `json:"depth"`
	ClaimedAt     int64  `json:"claimed_at"` // unix millis, 0 if unclaimed
	RetryCount    int    `json:"retry_count"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// ArticleRef identifies a claimed article handed to a worker.
type ArticleRef struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Depth      int    `json:"depth"`
	RetryCount int    `json:"retry_count"`
}

// Section represents a row in the sections table.
type Section struct {
	ID        int64  `json:"id"`
	ArticleID int64  `json:"article_id"`
	Ordinal   int    `json:"ordinal"`
	Heading   string `json:"heading"`
	Level     int    `json:"level"`
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// Entity is an extracted entity, unique by (name, type).
type Entity struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	ArticleCount int    `json:"article_count"`
}

// Relation connects two entities by name with a short predicate label.
type Relation struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Predicate string `json:"predicate"`
}

// Fact is a short statement attributed to one section of an article.
type Fact struct {
	SectionOrdinal int    `json:"section"`
	Text           string `json:"text"`
}

// SectionMatch is a vector search hit.
type SectionMatch struct {
	SectionID    int64   `json:"section_id"`
	ArticleID    int64   `json:"article_id"`
	ArticleTitle string  `json:"article_title"`
	Ordinal      int     `json:"ordinal"`
	Heading      string  `json:"heading"`
	Content      string  `json:"content"`
	WordCount    int     `json:"word_count"`
	Similarity   float64 `json:"similarity"`
}

// Direction selects link traversal direction for Neighbors.
type Direction int

const (
	Outbound Direction = iota
	Inbound
	Both
)

// Stats holds counts of key pack objects and queue states.
type Stats struct {
	Articles   int `json:"articles"`
	Sections   int `json:"sections"`
	Entities   int `json:"entities"`
	Relations  int `json:"relations"`
	Discovered int `json:"discovered"`
	Claimed    int `json:"claimed"`
	Loaded     int `json:"loaded"`
	Processed  int `json:"processed"`
	Failed     int `json:"failed"`
}

// QueryLog represents a row in the query_log table.
type QueryLog struct {
	Question         string   `json:"question"`
	Answer           string   `json:"answer"`
	QueryType        string   `json:"query_type"`
	Sources          []string `json:"sources"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
}

// Store wraps the SQLite database for all pack persistence. It is the sole
// durability boundary: every multi-edge write for one article happens in a
// single transaction.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and initialises
// the schema including the sqlite-vec virtual table. Claims rely on
// _txlock=immediate so that concurrent ClaimBatch calls serialize at BEGIN.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Article queue operations ---

// UpsertArticle inserts an article or, if the title already exists, keeps the
// record while taking the minimum depth. State and URL are only set on first
// insert: the lifecycle state never regresses through an upsert, and the
// original source URL wins.
func (s *Store) UpsertArticle(ctx context.Context, title, url string, depth int, initial State) error {
	if _, ok := stateRank[initial]; !ok {
		return fmt.Errorf("unknown article state %q", initial)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (title, url, depth, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET
			depth = MIN(articles.depth, excluded.depth),
			url = CASE WHEN articles.url IS NULL OR articles.url = ''
				THEN excluded.url ELSE articles.url END,
			updated_at = CURRENT_TIMESTAMP
	`, title, url, depth, string(initial))
	return err
}

// ArticleByTitle retrieves an article by its canonical title.
func (s *Store) ArticleByTitle(ctx context.Context, title string) (*Article, error) {
	a := &Article{}
	var url, category, reason sql.NullString
	var claimedAt sql.NullInt64
	var state string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, url, category, word_count, state, depth, claimed_at, retry_count, failure_reason
		FROM articles WHERE title = ?
	`, title).Scan(&a.ID, &a.Title, &url, &category, &a.WordCount, &state,
		&a.Depth, &claimedAt, &a.RetryCount, &reason)
	if err != nil {
		return nil, err
	}
	a.URL = url.String
	a.Category = category.String
	a.State = State(state)
	a.ClaimedAt = claimedAt.Int64
	a.FailureReason = reason.String
	return a, nil
}

// ClaimBatch atomically selects up to limit claimable articles, marks them
// claimed at now, and returns them. Claimable means discovered (and past any
// retry backoff) or claimed with a heartbeat older than heartbeatTimeout.
// Ordering is ascending depth, then insertion order. The immediate
// transaction makes concurrent callers receive disjoint sets.
func (s *Store) ClaimBatch(ctx context.Context, limit int, now time.Time, heartbeatTimeout time.Duration) ([]ArticleRef, error) {
	if limit <= 0 {
		return nil, nil
	}
	nowMs := now.UnixMilli()
	staleBefore := now.Add(-heartbeatTimeout).UnixMilli()

	var refs []ArticleRef
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, title, url, depth, retry_count FROM articles
			WHERE (state = 'discovered' AND retry_at <= ?)
			   OR (state = 'claimed' AND claimed_at < ?)
			ORDER BY depth ASC, id ASC
			LIMIT ?
		`, nowMs, staleBefore, limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			var r ArticleRef
			var url sql.NullString
			if err := rows.Scan(&r.ID, &r.Title, &url, &r.Depth, &r.RetryCount); err != nil {
				rows.Close()
				return err
			}
			r.URL = url.String
			refs = append(refs, r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, r := range refs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE articles SET state = 'claimed', claimed_at = ?, updated_at = CURRENT_TIMESTAMP
				WHERE id = ?
			`, nowMs, r.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// Heartbeat refreshes the claim timestamp for an article a worker is still
// processing. A no-op if the claim was already lost.
func (s *Store) Heartbeat(ctx context.Context, title string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles SET claimed_at = ? WHERE title = ? AND state = 'claimed'
	`, now.UnixMilli(), title)
	return err
}

// ReleaseClaim returns a claimed article to the discovered state without
// counting a retry. Used on cancellation.
func (s *Store) ReleaseClaim(ctx context.Context, title string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles SET state = 'discovered', claimed_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE title = ? AND state = 'claimed'
	`, title)
	return err
}

// MarkFailed records a pipeline failure. Transient failures return the
// article to discovered with a retry backoff until maxRetries is exhausted;
// permanent failures (and exhausted retries) move it to failed.
func (s *Store) MarkFailed(ctx context.Context, title, reason string, permanent bool, maxRetries int, retryAt time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var retries int
		if err := tx.QueryRowContext(ctx,
			"SELECT retry_count FROM articles WHERE title = ?", title).Scan(&retries); err != nil {
			return err
		}
		retries++

		state := StateDiscovered
		if permanent || retries >= maxRetries {
			state = StateFailed
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE articles SET state = ?, retry_count = ?, retry_at = ?,
				failure_reason = ?, claimed_at = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE title = ?
		`, string(state), retries, retryAt.UnixMilli(), reason, title)
		return err
	})
}

// --- Content writes ---

// WriteArticleContents transactionally replaces the sections of a claimed
// article, records its categories, creates LINKS_TO edges, and transitions
// claimed -> loaded. Link targets that do not exist yet are created as
// placeholder articles in state discovered at sourceDepth+1, but only while
// that depth is within maxDepth and the per-article linkBudget has not been
// spent. Edges to already-known articles are always recorded and never
// consume budget.
func (s *Store) WriteArticleContents(ctx context.Context, title string, sections []Section, links, categories []string, maxDepth, linkBudget int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		var depth int
		var state string
		err := tx.QueryRowContext(ctx,
			"SELECT id, depth, state FROM articles WHERE title = ?", title).
			Scan(&id, &depth, &state)
		if err != nil {
			return err
		}
		if State(state) != StateClaimed {
			return fmt.Errorf("article %q is %s, not claimed", title, state)
		}

		// Replace sections (and their embeddings; vec_sections has no FK).
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_sections WHERE section_id IN (
				SELECT id FROM sections WHERE article_id = ?
			)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM sections WHERE article_id = ?", id); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sections (article_id, ordinal, heading, level, content, word_count)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		totalWords := 0
		for _, sec := range sections {
			if _, err := stmt.ExecContext(ctx, id, sec.Ordinal, sec.Heading,
				sec.Level, sec.Content, sec.WordCount); err != nil {
				return err
			}
			totalWords += sec.WordCount
		}

		// Categories.
		for _, cat := range categories {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO categories (name) VALUES (?)", cat); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO article_categories (article_id, category_id)
				SELECT ?, id FROM categories WHERE name = ?
			`, id, cat); err != nil {
				return err
			}
		}
		primaryCategory := ""
		if len(categories) > 0 {
			primaryCategory = categories[0]
		}

		// Outbound links. Depth follows min(existing, source+1).
		childDepth := depth + 1
		created := 0
		for _, target := range links {
			if target == title {
				continue
			}
			var targetID int64
			err := tx.QueryRowContext(ctx,
				"SELECT id FROM articles WHERE title = ?", target).Scan(&targetID)
			switch {
			case err == sql.ErrNoRows:
				if childDepth > maxDepth || (linkBudget > 0 && created >= linkBudget) {
					continue
				}
				res, err := tx.ExecContext(ctx, `
					INSERT INTO articles (title, depth, state) VALUES (?, ?, 'discovered')
				`, target, childDepth)
				if err != nil {
					return err
				}
				if targetID, err = res.LastInsertId(); err != nil {
					return err
				}
				created++
			case err != nil:
				return err
			default:
				if _, err := tx.ExecContext(ctx, `
					UPDATE articles SET depth = MIN(depth, ?), updated_at = CURRENT_TIMESTAMP
					WHERE id = ?
				`, childDepth, targetID); err != nil {
					return err
				}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO links (source_article_id, target_article_id)
				VALUES (?, ?)
			`, id, targetID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE articles SET state = 'loaded', word_count = ?, category = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, totalWords, primaryCategory, id)
		return err
	})
}

// WriteEmbeddings fills the embedding for each section of an article, keyed
// by section ordinal. Vector length must equal the pack's dimension.
func (s *Store) WriteEmbeddings(ctx context.Context, title string, vectors map[int][]float32) error {
	for ord, v := range vectors {
		if len(v) != s.embeddingDim {
			return fmt.Errorf("section %d of %q: embedding has %d dims, pack uses %d",
				ord, title, len(v), s.embeddingDim)
		}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for ord, v := range vectors {
			var sectionID int64
			err := tx.QueryRowContext(ctx, `
				SELECT s.id FROM sections s
				JOIN articles a ON a.id = s.article_id
				WHERE a.title = ? AND s.ordinal = ?
			`, title, ord).Scan(&sectionID)
			if err != nil {
				return fmt.Errorf("resolving section %d of %q: %w", ord, title, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO vec_sections (section_id, embedding) VALUES (?, ?)",
				sectionID, serializeFloat32(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteExtractions merges extracted entities by (name, type), creates
// MENTIONS, RELATES_TO, and STATES edges, and transitions loaded ->
// processed. Calling it twice with identical input leaves the graph
// unchanged: entity upserts and edge inserts are idempotent.
func (s *Store) WriteExtractions(ctx context.Context, title string, entities []Entity, relations []Relation, facts []Fact) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		var state string
		if err := tx.QueryRowContext(ctx,
			"SELECT id, state FROM articles WHERE title = ?", title).Scan(&id, &state); err != nil {
			return err
		}
		if State(state) != StateLoaded {
			return fmt.Errorf("article %q is %s, not loaded", title, state)
		}

		secs, err := sectionsInTx(ctx, tx, id)
		if err != nil {
			return err
		}

		touched := make(map[int64]bool)
		for _, e := range entities {
			name := strings.TrimSpace(e.Name)
			if name == "" {
				continue
			}
			eid, err := upsertEntityInTx(ctx, tx, name, e.Type, e.Description)
			if err != nil {
				return err
			}
			touched[eid] = true

			// MENTIONS: link the entity to every section whose text contains it.
			lower := strings.ToLower(name)
			for _, sec := range secs {
				if !strings.Contains(strings.ToLower(sec.Content), lower) {
					continue
				}
				if _, err := tx.ExecContext(ctx,
					"INSERT OR IGNORE INTO section_entities (section_id, entity_id) VALUES (?, ?)",
					sec.ID, eid); err != nil {
					return err
				}
			}
		}

		for _, r := range relations {
			srcID, ok, err := entityIDByName(ctx, tx, r.Source)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			tgtID, ok, err := entityIDByName(ctx, tx, r.Target)
			if err != nil {
				return err
			}
			if !ok || srcID == tgtID {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO relationships (source_entity_id, target_entity_id, predicate)
				VALUES (?, ?, ?)
			`, srcID, tgtID, strings.TrimSpace(r.Predicate)); err != nil {
				return err
			}
		}

		for _, f := range facts {
			text := strings.TrimSpace(f.Text)
			if text == "" || len(secs) == 0 {
				continue
			}
			sec := secs[0]
			for _, c := range secs {
				if c.Ordinal == f.SectionOrdinal {
					sec = c
					break
				}
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO facts (section_id, content) VALUES (?, ?)",
				sec.ID, text); err != nil {
				return err
			}
		}

		// Refresh the article_count back-reference cache for touched entities.
		for eid := range touched {
			if _, err := tx.ExecContext(ctx, `
				UPDATE entities SET article_count = (
					SELECT COUNT(DISTINCT s.article_id)
					FROM section_entities se JOIN sections s ON s.id = se.section_id
					WHERE se.entity_id = entities.id
				) WHERE id = ?
			`, eid); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE articles SET state = 'processed', claimed_at = NULL,
				failure_reason = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, id)
		return err
	})
}

func upsertEntityInTx(ctx context.Context, tx *sql.Tx, name, etype, description string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO entities (name, entity_type, description)
		VALUES (?, ?, ?)
		ON CONFLICT(name, entity_type) DO UPDATE SET
			description = CASE WHEN entities.description IS NULL OR entities.description = ''
				THEN excluded.description ELSE entities.description END
	`, name, etype, description)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if id == 0 {
		err = tx.QueryRowContext(ctx,
			"SELECT id FROM entities WHERE name = ? AND entity_type = ?",
			name, etype).Scan(&id)
	}
	return id, err
}

func entityIDByName(ctx context.Context, tx *sql.Tx, name string) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM entities WHERE name = ? ORDER BY id LIMIT 1",
		strings.TrimSpace(name)).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func sectionsInTx(ctx context.Context, tx *sql.Tx, articleID int64) ([]Section, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, article_id, ordinal, heading, level, content, word_count
		FROM sections WHERE article_id = ? ORDER BY ordinal
	`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var secs []Section
	for rows.Next() {
		var sec Section
		var heading sql.NullString
		if err := rows.Scan(&sec.ID, &sec.ArticleID, &sec.Ordinal, &heading,
			&sec.Level, &sec.Content, &sec.WordCount); err != nil {
			return nil, err
		}
		sec.Heading = heading.String
		secs = append(secs, sec)
	}
	return secs, rows.Err()
}

// SectionsByArticle returns all sections for an article title, in order.
func (s *Store) SectionsByArticle(ctx context.Context, title string) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.article_id, s.ordinal, s.heading, s.level, s.content, s.word_count
		FROM sections s JOIN articles a ON a.id = s.article_id
		WHERE a.title = ? ORDER BY s.ordinal
	`, title)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var secs []Section
	for rows.Next() {
		var sec Section
		var heading sql.NullString
		if err := rows.Scan(&sec.ID, &sec.ArticleID, &sec.Ordinal, &heading,
			&sec.Level, &sec.Content, &sec.WordCount); err != nil {
			return nil, err
		}
		sec.Heading = heading.String
		secs = append(secs, sec)
	}
	return secs, rows.Err()
}

// SectionHasEmbedding checks if a specific section has a vector embedding.
func (s *Store) SectionHasEmbedding(ctx context.Context, sectionID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vec_sections WHERE section_id = ?", sectionID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// --- Retrieval queries ---

// VectorSearch performs a KNN search returning the top-k sections by cosine
// similarity. Ties in similarity break by ascending article title, then
// section id, so results are deterministic.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, k int) ([]SectionMatch, error) {
	if len(queryEmbedding) != s.embeddingDim {
		return nil, fmt.Errorf("query embedding has %d dims, pack uses %d",
			len(queryEmbedding), s.embeddingDim)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.section_id, v.distance,
			s.article_id, s.ordinal, s.heading, s.content, s.word_count,
			a.title
		FROM vec_sections v
		JOIN sections s ON s.id = v.section_id
		JOIN articles a ON a.id = s.article_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance, a.title, v.section_id
	`, serializeFloat32(queryEmbedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SectionMatch
	for rows.Next() {
		var m SectionMatch
		var distance float64
		var heading sql.NullString
		if err := rows.Scan(&m.SectionID, &distance, &m.ArticleID, &m.Ordinal,
			&heading, &m.Content, &m.WordCount, &m.ArticleTitle); err != nil {
			return nil, err
		}
		m.Heading = heading.String
		m.Similarity = 1.0 - distance
		results = append(results, m)
	}
	return results, rows.Err()
}

// Neighbors returns titles of articles connected to the given article by
// LINKS_TO edges, ordered by title.
func (s *Store) Neighbors(ctx context.Context, title string, dir Direction) ([]string, error) {
	var query string
	switch dir {
	case Outbound:
		query = `
			SELECT t.title FROM links l
			JOIN articles src ON src.id = l.source_article_id
			JOIN articles t ON t.id = l.target_article_id
			WHERE src.title = ? ORDER BY t.title`
	case Inbound:
		query = `
			SELECT src.title FROM links l
			JOIN articles src ON src.id = l.source_article_id
			JOIN articles t ON t.id = l.target_article_id
			WHERE t.title = ? ORDER BY src.title`
	case Both:
		query = `
			SELECT n.title FROM (
				SELECT l.target_article_id AS nid FROM links l
				JOIN articles src ON src.id = l.source_article_id WHERE src.title = ?
				UNION
				SELECT l.source_article_id FROM links l
				JOIN articles t ON t.id = l.target_article_id WHERE t.title = ?
			) JOIN articles n ON n.id = nid ORDER BY n.title`
	default:
		return nil, fmt.Errorf("unknown direction %d", dir)
	}

	args := []interface{}{title}
	if dir == Both {
		args = append(args, title)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// Degree returns the total count of incoming and outgoing LINKS_TO edges for
// an article. Used as the centrality signal in reranking.
func (s *Store) Degree(ctx context.Context, title string) (int, error) {
	var degree int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM links l
		JOIN articles a ON a.id = l.source_article_id OR a.id = l.target_article_id
		WHERE a.title = ?
	`, title).Scan(&degree)
	return degree, err
}

// --- Monitoring ---

// Stats returns counts of pack objects and queue states.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM articles", &stats.Articles},
		{"SELECT COUNT(*) FROM sections", &stats.Sections},
		{"SELECT COUNT(*) FROM entities", &stats.Entities},
		{"SELECT COUNT(*) FROM relationships", &stats.Relations},
		{"SELECT COUNT(*) FROM articles WHERE state = 'discovered'", &stats.Discovered},
		{"SELECT COUNT(*) FROM articles WHERE state = 'claimed'", &stats.Claimed},
		{"SELECT COUNT(*) FROM articles WHERE state = 'loaded'", &stats.Loaded},
		{"SELECT COUNT(*) FROM articles WHERE state = 'processed'", &stats.Processed},
		{"SELECT COUNT(*) FROM articles WHERE state = 'failed'", &stats.Failed},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// ProcessedCount returns the number of processed articles. Cheaper than
// Stats for the orchestrator's stop check.
func (s *Store) ProcessedCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM articles WHERE state = 'processed'").Scan(&n)
	return n, err
}

// --- Query log ---

// LogQuery writes an entry to the query audit log.
func (s *Store) LogQuery(ctx context.Context, q QueryLog) error {
	sourcesJSON, _ := json.Marshal(q.Sources)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (question, answer, query_type, sources, prompt_tokens, completion_tokens, total_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, q.Question, q.Answer, q.QueryType, string(sourcesJSON),
		q.PromptTokens, q.CompletionTokens, q.TotalTokens)
	return err
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
