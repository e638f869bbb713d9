//go:build cgo

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const testDim = 4

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "pack.db"), testDim)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func claimOne(t *testing.T, s *Store, now time.Time) ArticleRef {
	t.Helper()
	refs, err := s.ClaimBatch(context.Background(), 1, now, time.Minute)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("ClaimBatch returned %d articles, want 1", len(refs))
	}
	return refs[0]
}

func TestUpsertArticleDepthMin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertArticle(ctx, "Go (programming language)", "", 3, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	if err := s.UpsertArticle(ctx, "Go (programming language)", "https://en.wikipedia.org/wiki/Go", 1, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	if err := s.UpsertArticle(ctx, "Go (programming language)", "", 5, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}

	a, err := s.ArticleByTitle(ctx, "Go (programming language)")
	if err != nil {
		t.Fatalf("ArticleByTitle: %v", err)
	}
	if a.Depth != 1 {
		t.Errorf("depth = %d, want 1 (minimum across upserts)", a.Depth)
	}
	if a.URL != "https://en.wikipedia.org/wiki/Go" {
		t.Errorf("url = %q, want the first non-empty url to stick", a.URL)
	}
	if a.State != StateDiscovered {
		t.Errorf("state = %s, want discovered", a.State)
	}
}

func TestUpsertDoesNotRegressState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertArticle(ctx, "Alan Turing", "", 0, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	claimOne(t, s, now)

	// Rediscovering a claimed article must not reset it to discovered.
	if err := s.UpsertArticle(ctx, "Alan Turing", "", 2, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	a, err := s.ArticleByTitle(ctx, "Alan Turing")
	if err != nil {
		t.Fatalf("ArticleByTitle: %v", err)
	}
	if a.State != StateClaimed {
		t.Errorf("state = %s after re-upsert, want claimed", a.State)
	}
	if a.Depth != 0 {
		t.Errorf("depth = %d, want 0 kept as minimum", a.Depth)
	}
}

func TestClaimBatchOrderAndExclusivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, seed := range []struct {
		title string
		depth int
	}{
		{"Deep", 2},
		{"Shallow", 0},
		{"Middle", 1},
	} {
		if err := s.UpsertArticle(ctx, seed.title, "", seed.depth, StateDiscovered); err != nil {
			t.Fatalf("UpsertArticle: %v", err)
		}
	}

	first, err := s.ClaimBatch(ctx, 2, now, time.Minute)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("got %d claims, want 2", len(first))
	}
	if first[0].Title != "Shallow" || first[1].Title != "Middle" {
		t.Errorf("claim order = [%s, %s], want shallowest first", first[0].Title, first[1].Title)
	}

	// A second claimer must not receive anything already claimed.
	second, err := s.ClaimBatch(ctx, 10, now, time.Minute)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(second) != 1 || second[0].Title != "Deep" {
		t.Fatalf("second batch = %v, want only Deep", second)
	}

	third, err := s.ClaimBatch(ctx, 10, now, time.Minute)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(third) != 0 {
		t.Errorf("third batch returned %d articles, want 0", len(third))
	}
}

func TestClaimBatchConcurrentCallersDisjoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const total = 60
	for i := 0; i < total; i++ {
		title := fmt.Sprintf("Article %02d", i)
		if err := s.UpsertArticle(ctx, title, "", i%3, StateDiscovered); err != nil {
			t.Fatalf("UpsertArticle: %v", err)
		}
	}

	// Several claimers race over the shared queue until it drains. The
	// long heartbeat timeout rules out stale-claim reclaims, so every
	// title must be handed out exactly once.
	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[string]int)
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				refs, err := s.ClaimBatch(ctx, 5, time.Now(), time.Hour)
				if err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					return
				}
				if len(refs) == 0 {
					return
				}
				mu.Lock()
				for _, ref := range refs {
					claimed[ref.Title]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("ClaimBatch: %v", errs[0])
	}
	if len(claimed) != total {
		t.Errorf("claimed %d distinct articles, want %d", len(claimed), total)
	}
	for title, n := range claimed {
		if n != 1 {
			t.Errorf("%s claimed %d times, want exactly once", title, n)
		}
	}
}

func TestClaimBatchReclaimsStaleClaims(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertArticle(ctx, "Orphaned", "", 0, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	claimOne(t, s, now)

	// Within the heartbeat window the claim holds.
	refs, err := s.ClaimBatch(ctx, 1, now.Add(30*time.Second), time.Minute)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("claim stolen while heartbeat still fresh")
	}

	// Past the window the claim is reclaimable, simulating a crashed worker.
	refs, err = s.ClaimBatch(ctx, 1, now.Add(2*time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(refs) != 1 || refs[0].Title != "Orphaned" {
		t.Fatalf("stale claim not reclaimed, got %v", refs)
	}
}

func TestHeartbeatExtendsClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertArticle(ctx, "Busy", "", 0, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	claimOne(t, s, now)

	if err := s.Heartbeat(ctx, "Busy", now.Add(50*time.Second)); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	// Without the heartbeat this claim would be stale at now+90s.
	refs, err := s.ClaimBatch(ctx, 1, now.Add(90*time.Second), time.Minute)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("heartbeated claim was stolen")
	}
}

func TestReleaseClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertArticle(ctx, "Cancelled", "", 0, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	claimOne(t, s, now)
	if err := s.ReleaseClaim(ctx, "Cancelled"); err != nil {
		t.Fatalf("ReleaseClaim: %v", err)
	}

	a, err := s.ArticleByTitle(ctx, "Cancelled")
	if err != nil {
		t.Fatalf("ArticleByTitle: %v", err)
	}
	if a.State != StateDiscovered {
		t.Errorf("state = %s after release, want discovered", a.State)
	}
	if a.RetryCount != 0 {
		t.Errorf("retry_count = %d after release, want 0", a.RetryCount)
	}
}

func TestMarkFailedRetriesThenFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertArticle(ctx, "Flaky", "", 0, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}

	// Two transient failures with maxRetries=3 return to the queue.
	for i := 0; i < 2; i++ {
		claimOne(t, s, now)
		if err := s.MarkFailed(ctx, "Flaky", "fetch timeout", false, 3, now); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}
		a, err := s.ArticleByTitle(ctx, "Flaky")
		if err != nil {
			t.Fatalf("ArticleByTitle: %v", err)
		}
		if a.State != StateDiscovered {
			t.Fatalf("state = %s after transient failure %d, want discovered", a.State, i+1)
		}
	}

	// Third failure exhausts retries.
	claimOne(t, s, now)
	if err := s.MarkFailed(ctx, "Flaky", "fetch timeout", false, 3, now); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	a, err := s.ArticleByTitle(ctx, "Flaky")
	if err != nil {
		t.Fatalf("ArticleByTitle: %v", err)
	}
	if a.State != StateFailed {
		t.Errorf("state = %s after exhausting retries, want failed", a.State)
	}
	if a.RetryCount != 3 {
		t.Errorf("retry_count = %d, want 3", a.RetryCount)
	}
	if a.FailureReason != "fetch timeout" {
		t.Errorf("failure_reason = %q", a.FailureReason)
	}
}

func TestMarkFailedPermanent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertArticle(ctx, "Stub", "", 0, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	claimOne(t, s, now)
	if err := s.MarkFailed(ctx, "Stub", "thin content", true, 3, now); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	a, err := s.ArticleByTitle(ctx, "Stub")
	if err != nil {
		t.Fatalf("ArticleByTitle: %v", err)
	}
	if a.State != StateFailed {
		t.Errorf("state = %s after permanent failure, want failed", a.State)
	}
}

func TestMarkFailedRespectsRetryBackoff(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertArticle(ctx, "Backoff", "", 0, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	claimOne(t, s, now)
	if err := s.MarkFailed(ctx, "Backoff", "503", false, 5, now.Add(time.Minute)); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	refs, err := s.ClaimBatch(ctx, 1, now.Add(30*time.Second), time.Hour)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("article claimed before its retry backoff elapsed")
	}

	refs, err = s.ClaimBatch(ctx, 1, now.Add(2*time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("article not claimable after backoff elapsed")
	}
}

func loadArticle(t *testing.T, s *Store, title string, sections []Section, links []string) {
	t.Helper()
	ctx := context.Background()
	if err := s.UpsertArticle(ctx, title, "", 0, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	if _, err := s.db.Exec(
		"UPDATE articles SET state = 'claimed', claimed_at = ? WHERE title = ?",
		time.Now().UnixMilli(), title); err != nil {
		t.Fatalf("forcing claim: %v", err)
	}
	if err := s.WriteArticleContents(ctx, title, sections, links, nil, 2, 0); err != nil {
		t.Fatalf("WriteArticleContents: %v", err)
	}
}

func TestWriteArticleContentsTransitionsAndLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sections := []Section{
		{Ordinal: 0, Heading: "", Level: 1, Content: "Paris is the capital of France.", WordCount: 6},
		{Ordinal: 1, Heading: "History", Level: 2, Content: "Founded by the Parisii.", WordCount: 4},
	}
	loadArticle(t, s, "Paris", sections, []string{"France", "Seine"})

	a, err := s.ArticleByTitle(ctx, "Paris")
	if err != nil {
		t.Fatalf("ArticleByTitle: %v", err)
	}
	if a.State != StateLoaded {
		t.Errorf("state = %s, want loaded", a.State)
	}
	if a.WordCount != 10 {
		t.Errorf("word_count = %d, want 10", a.WordCount)
	}

	// Link targets become discovered placeholders one level deeper.
	fr, err := s.ArticleByTitle(ctx, "France")
	if err != nil {
		t.Fatalf("placeholder France not created: %v", err)
	}
	if fr.State != StateDiscovered || fr.Depth != 1 {
		t.Errorf("France = (%s, depth %d), want (discovered, 1)", fr.State, fr.Depth)
	}

	out, err := s.Neighbors(ctx, "Paris", Outbound)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(out) != 2 || out[0] != "France" || out[1] != "Seine" {
		t.Errorf("outbound neighbors = %v", out)
	}

	deg, err := s.Degree(ctx, "Paris")
	if err != nil {
		t.Fatalf("Degree: %v", err)
	}
	if deg != 2 {
		t.Errorf("degree = %d, want 2", deg)
	}
}

func TestWriteArticleContentsHonorsDepthLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertArticle(ctx, "Frontier", "", 2, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	if _, err := s.db.Exec(
		"UPDATE articles SET state = 'claimed', claimed_at = ? WHERE title = 'Frontier'",
		time.Now().UnixMilli()); err != nil {
		t.Fatalf("forcing claim: %v", err)
	}

	// Pre-existing articles keep their edge even past the depth limit.
	if err := s.UpsertArticle(ctx, "Known", "", 0, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}

	sections := []Section{{Ordinal: 0, Level: 1, Content: "At the edge.", WordCount: 3}}
	if err := s.WriteArticleContents(ctx, "Frontier", sections, []string{"Beyond", "Known"}, nil, 2, 0); err != nil {
		t.Fatalf("WriteArticleContents: %v", err)
	}

	if _, err := s.ArticleByTitle(ctx, "Beyond"); err == nil {
		t.Errorf("placeholder created past max depth")
	}
	out, err := s.Neighbors(ctx, "Frontier", Outbound)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(out) != 1 || out[0] != "Known" {
		t.Errorf("neighbors = %v, want edge to Known only", out)
	}
}

func TestWriteArticleContentsLinkBudget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertArticle(ctx, "Hub", "", 0, StateDiscovered); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	if _, err := s.db.Exec(
		"UPDATE articles SET state = 'claimed', claimed_at = ? WHERE title = 'Hub'",
		time.Now().UnixMilli()); err != nil {
		t.Fatalf("forcing claim: %v", err)
	}

	sections := []Section{{Ordinal: 0, Level: 1, Content: "Many links.", WordCount: 2}}
	links := []string{"A", "B", "C", "D"}
	if err := s.WriteArticleContents(ctx, "Hub", sections, links, nil, 3, 2); err != nil {
		t.Fatalf("WriteArticleContents: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	// Hub plus two placeholders within budget.
	if stats.Articles != 3 {
		t.Errorf("articles = %d, want 3 (budget of 2 new placeholders)", stats.Articles)
	}
}

func TestWriteEmbeddingsAndVectorSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loadArticle(t, s, "Cats", []Section{
		{Ordinal: 0, Level: 1, Content: "Cats are small carnivores.", WordCount: 4},
	}, nil)
	loadArticle(t, s, "Dogs", []Section{
		{Ordinal: 0, Level: 1, Content: "Dogs are loyal companions.", WordCount: 4},
	}, nil)

	if err := s.WriteEmbeddings(ctx, "Cats", map[int][]float32{0: {1, 0, 0, 0}}); err != nil {
		t.Fatalf("WriteEmbeddings: %v", err)
	}
	if err := s.WriteEmbeddings(ctx, "Dogs", map[int][]float32{0: {0, 1, 0, 0}}); err != nil {
		t.Fatalf("WriteEmbeddings: %v", err)
	}

	matches, err := s.VectorSearch(ctx, []float32{0.9, 0.1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ArticleTitle != "Cats" {
		t.Errorf("top match = %s, want Cats", matches[0].ArticleTitle)
	}
	if matches[0].Similarity <= matches[1].Similarity {
		t.Errorf("similarities not descending: %f then %f", matches[0].Similarity, matches[1].Similarity)
	}
	if matches[0].Similarity < 0.9 {
		t.Errorf("top similarity = %f, want near 1 for aligned vectors", matches[0].Similarity)
	}
}

func TestWriteEmbeddingsRejectsWrongDimension(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loadArticle(t, s, "Short", []Section{
		{Ordinal: 0, Level: 1, Content: "x", WordCount: 1},
	}, nil)

	err := s.WriteEmbeddings(ctx, "Short", map[int][]float32{0: {1, 0}})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestWriteExtractionsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loadArticle(t, s, "Marie Curie", []Section{
		{Ordinal: 0, Level: 1, Content: "Marie Curie discovered radium in Paris.", WordCount: 6},
		{Ordinal: 1, Heading: "Legacy", Level: 2, Content: "Her work shaped modern physics.", WordCount: 5},
	}, nil)

	entities := []Entity{
		{Name: "Marie Curie", Type: "person", Description: "Physicist and chemist"},
		{Name: "radium", Type: "concept"},
		{Name: "Paris", Type: "location"},
	}
	relations := []Relation{
		{Source: "Marie Curie", Target: "radium", Predicate: "discovered"},
		{Source: "Marie Curie", Target: "Unknown Entity", Predicate: "ignored"},
	}
	facts := []Fact{{SectionOrdinal: 0, Text: "Radium was discovered in 1898."}}

	if err := s.WriteExtractions(ctx, "Marie Curie", entities, relations, facts); err != nil {
		t.Fatalf("WriteExtractions: %v", err)
	}

	a, err := s.ArticleByTitle(ctx, "Marie Curie")
	if err != nil {
		t.Fatalf("ArticleByTitle: %v", err)
	}
	if a.State != StateProcessed {
		t.Errorf("state = %s, want processed", a.State)
	}

	first, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if first.Entities != 3 {
		t.Errorf("entities = %d, want 3", first.Entities)
	}
	// The relation to an unknown entity is skipped, not an error.
	if first.Relations != 1 {
		t.Errorf("relations = %d, want 1", first.Relations)
	}

	// A duplicate write (e.g. replayed after a crash) must not duplicate edges.
	if _, err := s.db.Exec("UPDATE articles SET state = 'loaded' WHERE title = 'Marie Curie'"); err != nil {
		t.Fatalf("resetting state: %v", err)
	}
	if err := s.WriteExtractions(ctx, "Marie Curie", entities, relations, facts); err != nil {
		t.Fatalf("WriteExtractions replay: %v", err)
	}
	second, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if second.Entities != first.Entities || second.Relations != first.Relations {
		t.Errorf("replay changed counts: %+v then %+v", first, second)
	}
}

func TestWriteExtractionsMergesCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loadArticle(t, s, "Chemistry", []Section{
		{Ordinal: 0, Level: 1, Content: "Radium glows.", WordCount: 2},
	}, nil)
	if err := s.WriteExtractions(ctx, "Chemistry",
		[]Entity{{Name: "Radium", Type: "concept"}, {Name: "radium", Type: "concept"}},
		nil, nil); err != nil {
		t.Fatalf("WriteExtractions: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entities != 1 {
		t.Errorf("entities = %d, want 1 after case-insensitive merge", stats.Entities)
	}
}

func TestStatsCountsStates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, title := range []string{"One", "Two", "Three"} {
		if err := s.UpsertArticle(ctx, title, "", 0, StateDiscovered); err != nil {
			t.Fatalf("UpsertArticle: %v", err)
		}
	}
	claimOne(t, s, now)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Articles != 3 || stats.Discovered != 2 || stats.Claimed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestLogQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.LogQuery(ctx, QueryLog{
		Question:    "What is radium?",
		Answer:      "A radioactive element.",
		QueryType:   "vector_search",
		Sources:     []string{"Radium"},
		TotalTokens: 120,
	})
	if err != nil {
		t.Fatalf("LogQuery: %v", err)
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM query_log").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("query_log rows = %d, want 1", n)
	}
}
