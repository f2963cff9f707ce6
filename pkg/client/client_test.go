package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/go-emb25/pkg/config"
	"github.com/opd-ai/go-emb25/pkg/errors"
	"github.com/opd-ai/go-emb25/pkg/indexer"
)

var corpus = []string{
	"The quick brown fox jumps over the lazy dog",
	"The quick brown fox jumps over the quick dog",
	"Brown fox brown dog",
	"Magic the gathering",
	"Brown fox lazy dog",
	"Lazy dog quick brown fox",
	"Brown dog lazy fox",
	"The quick brown fox and the quick blue hare",
}

func testConfig(serverURL, statePath string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.ServerURL = serverURL
	cfg.StatePath = statePath
	cfg.MaxRetries = 1
	cfg.RetryInitialDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond
	cfg.LogLevel = "error"
	return cfg
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := New(testConfig(serverURL, ""), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// ingestCorpus loads the eight reference sentences and flushes.
func ingestCorpus(t *testing.T, c *Client) {
	t.Helper()
	for _, text := range corpus {
		if _, err := c.Add("", text); err != nil {
			t.Fatalf("Add(%q) failed: %v", text, err)
		}
	}
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func TestSearchSingleRareTerm(t *testing.T) {
	_, ts := newFakeServer(t)
	c := newTestClient(t, ts.URL)
	ingestCorpus(t, c)

	results, err := c.Search(context.Background(), "gathering", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("Search returned %d results, want 1", len(results))
	}
	if results[0].Document.Content != "Magic the gathering" {
		t.Errorf("result = %q, want the gathering sentence", results[0].Document.Content)
	}
	if results[0].Score <= 0 {
		t.Errorf("score = %v, want > 0", results[0].Score)
	}
}

func TestSearchTwoTermsRanked(t *testing.T) {
	_, ts := newFakeServer(t)
	c := newTestClient(t, ts.URL)
	ingestCorpus(t, c)

	results, err := c.Search(context.Background(), "quick brown", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("Search returned %d results, want 3", len(results))
	}

	// Every document containing "quick" outranks the brown-only ones, so
	// the top three come from sentences 1, 2, 6 and 8. The gathering
	// sentence contains neither term and must never appear.
	quickSentences := map[string]bool{
		corpus[0]: true, corpus[1]: true, corpus[5]: true, corpus[7]: true,
	}
	for i, r := range results {
		if r.Document.Content == "Magic the gathering" {
			t.Error("a document without either query term was returned")
		}
		if !quickSentences[r.Document.Content] {
			t.Errorf("result %d = %q, not one of the quick sentences", i, r.Document.Content)
		}
		if i > 0 && results[i].Score > results[i-1].Score {
			t.Error("results are not in descending score order")
		}
	}
}

func TestSearchUnknownTermIssuesNoLookups(t *testing.T) {
	fs, ts := newFakeServer(t)
	c := newTestClient(t, ts.URL)
	ingestCorpus(t, c)
	before := fs.searchCount()

	results, err := c.Search(context.Background(), "xyznotindexed", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 0 {
		t.Errorf("Search returned %d results, want 0", len(results))
	}
	if got := fs.searchCount(); got != before {
		t.Errorf("unknown term caused %d network lookups, want 0", got-before)
	}
}

func TestLookupRecoversMeta(t *testing.T) {
	_, ts := newFakeServer(t)
	c := newTestClient(t, ts.URL)

	text := "alpha beta alpha"
	id, err := c.Add("", text)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	metas, err := c.Lookup(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("Lookup returned %d metas, want 1", len(metas))
	}
	if metas[0].DocID != id {
		t.Errorf("DocID = %d, want %d", metas[0].DocID, id)
	}
	if metas[0].TermFreq != 2 {
		t.Errorf("TermFreq = %d, want 2", metas[0].TermFreq)
	}
	if metas[0].DocSize != uint64(len(text)) {
		t.Errorf("DocSize = %d, want %d", metas[0].DocSize, len(text))
	}

	results, err := c.Search(context.Background(), "alpha", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Document.Content != text {
		t.Errorf("Search = %+v, want the alpha document", results)
	}
}

func TestDuplicateContentIndexesTwice(t *testing.T) {
	fs, ts := newFakeServer(t)
	c := newTestClient(t, ts.URL)

	a, err := c.Add("", "alpha beta")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	b, err := c.Add("", "alpha beta")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if a == b {
		t.Fatal("duplicate content shares a document id")
	}
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// Two postings per token, all under distinct keys, no overwrites.
	if got := fs.postingCount(); got != 4 {
		t.Errorf("server holds %d postings, want 4", got)
	}
	if got := fs.conflictCount(); got != 0 {
		t.Errorf("server saw %d conflicting key writes, want 0", got)
	}

	results, err := c.Search(context.Background(), "alpha", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search returned %d results, want 2", len(results))
	}
	if results[0].Document.ID == results[1].Document.ID {
		t.Error("both results reference the same document")
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	_, ts := newFakeServer(t)
	statePath := filepath.Join(t.TempDir(), "state.db")

	first, err := New(testConfig(ts.URL, statePath), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ingestCorpus(t, first)
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := New(testConfig(ts.URL, statePath), nil)
	if err != nil {
		t.Fatalf("New after restart failed: %v", err)
	}
	defer second.Close()

	if got := second.State(); got != indexer.StateFlushed {
		t.Errorf("restored state = %v, want flushed", got)
	}
	if got := second.Stats().Documents; got != 8 {
		t.Errorf("restored document count = %d, want 8", got)
	}

	// The restored keyring must derive the same lookup keys and open the
	// same sealed documents.
	results, err := second.Search(context.Background(), "gathering", 5)
	if err != nil {
		t.Fatalf("Search after restart failed: %v", err)
	}
	if len(results) != 1 || results[0].Document.Content != "Magic the gathering" {
		t.Errorf("Search after restart = %+v", results)
	}
}

func TestSearchBeforeFlushMissesEverything(t *testing.T) {
	_, ts := newFakeServer(t)
	c := newTestClient(t, ts.URL)

	if _, err := c.Add("", "brown fox"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// The dictionary knows the term, the server does not: pure misses.
	results, err := c.Search(context.Background(), "brown", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search before flush returned %d results, want 0", len(results))
	}
}

func TestSearchAgainstDeadServerDegrades(t *testing.T) {
	_, ts := newFakeServer(t)
	c := newTestClient(t, ts.URL)
	ingestCorpus(t, c)
	ts.Close()

	results, err := c.Search(context.Background(), "gathering", 5)
	if err != nil {
		t.Fatalf("Search against a dead server must degrade, got: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search returned %d results, want empty", len(results))
	}
}

func TestFlushAgainstDeadServerFails(t *testing.T) {
	_, ts := newFakeServer(t)
	c := newTestClient(t, ts.URL)
	ts.Close()

	if _, err := c.Add("", "brown fox"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	err := c.Flush(context.Background())
	if err == nil {
		t.Fatal("Flush succeeded against a dead server")
	}
	if !errors.IsRetryable(err) {
		t.Errorf("flush failure should be recoverable, got: %v", err)
	}
}

func TestAddRejectsOversizedDocument(t *testing.T) {
	_, ts := newFakeServer(t)
	cfg := testConfig(ts.URL, "")
	cfg.MaxDocumentSize = 10
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if _, err := c.Add("", "this is longer than ten bytes"); err == nil {
		t.Fatal("Add accepted an oversized document")
	} else if !errors.IsCategory(err, errors.CategoryValidation) {
		t.Errorf("error category = %v, want validation", errors.GetCategory(err))
	}
}

func TestFlushTwiceIsIdempotent(t *testing.T) {
	fs, ts := newFakeServer(t)
	c := newTestClient(t, ts.URL)

	if _, err := c.Add("", "brown fox"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// First flush succeeds; a second flush re-sends the retained postings
	// idempotently.
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	before := fs.postingCount()
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}
	if got := fs.postingCount(); got != before {
		t.Errorf("idempotent re-flush changed posting count: %d -> %d", before, got)
	}
	if got := fs.conflictCount(); got != 0 {
		t.Errorf("re-flush caused %d conflicting writes, want 0", got)
	}
}
