// Package client provides the high-level search client orchestration.
// This package integrates the indexer, the transport, and the state store
// into a functional encrypted-search client: ingest locally, flush sealed
// batches to the server, search by sending opaque lookup keys and ranking
// the decoded postings locally.
package client

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/go-emb25/pkg/bm25"
	"github.com/opd-ai/go-emb25/pkg/config"
	"github.com/opd-ai/go-emb25/pkg/crypto"
	"github.com/opd-ai/go-emb25/pkg/errors"
	"github.com/opd-ai/go-emb25/pkg/index"
	"github.com/opd-ai/go-emb25/pkg/indexer"
	"github.com/opd-ai/go-emb25/pkg/logger"
	"github.com/opd-ai/go-emb25/pkg/metrics"
	"github.com/opd-ai/go-emb25/pkg/state"
	"github.com/opd-ai/go-emb25/pkg/tokenizer"
	"github.com/opd-ai/go-emb25/pkg/transport"
)

// fetchConcurrency bounds the parallel network calls on both paths.
const fetchConcurrency = 4

// Client is a search client instance. It owns the keyring, the indexer
// state, and the connection to one index server.
type Client struct {
	cfg   *config.Config
	log   *logger.Logger
	met   *metrics.Metrics
	keys  *crypto.Keyring
	ix    *indexer.Indexer
	api   *transport.Client
	store state.Store

	closeMu sync.Mutex
	closed  bool
}

// Result is one ranked search hit: the opened document and its cumulative
// BM25 score.
type Result struct {
	Document index.Document
	Score    float64
}

// New creates a search client. Keyring, dictionary and corpus statistics
// are restored from the state store when present; otherwise a fresh
// keyring is generated and saved. A nil logger falls back to the level
// configured in cfg.
func New(cfg *config.Config, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.ConfigurationError("config is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError("invalid config", err)
	}
	if log == nil {
		level, _ := logger.ParseLevel(cfg.LogLevel)
		log = logger.New(level, os.Stdout)
	}

	met := metrics.New()

	var store state.Store
	if cfg.StatePath == "" {
		store = state.NewMemory()
	} else {
		var err error
		if store, err = state.Open(cfg.StatePath); err != nil {
			return nil, errors.StorageError("failed to open state store", err)
		}
	}

	keys, ok, err := store.LoadKeyring()
	if err != nil {
		store.Close()
		return nil, errors.CryptoError("failed to load keyring", err)
	}
	if !ok {
		if keys, err = crypto.NewKeyring(); err != nil {
			store.Close()
			return nil, errors.CryptoError("failed to generate keyring", err)
		}
		if err := store.SaveKeyring(keys); err != nil {
			store.Close()
			return nil, errors.StorageError("failed to save keyring", err)
		}
	}

	ix := indexer.New(keys, tokenizer.NewEnglish(), log, met)
	ix.SetScorer(bm25.Scorer{K1: cfg.BM25K1, B: cfg.BM25B})

	if terms, stats, ok, err := store.LoadIndex(); err != nil {
		store.Close()
		return nil, errors.StorageError("failed to load index state", err)
	} else if ok {
		ix.Restore(terms, stats)
	}

	api, err := transport.New(cfg, log, met)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Client{
		cfg:   cfg,
		log:   log.Component("client"),
		met:   met,
		keys:  keys,
		ix:    ix,
		api:   api,
		store: store,
	}, nil
}

// Add ingests one document into the local index. The document does not
// reach the server until the next Flush.
func (c *Client) Add(title, content string) (uint64, error) {
	if len(content) > c.cfg.MaxDocumentSize {
		return 0, errors.ValidationError(
			fmt.Sprintf("document of %d bytes exceeds the %d byte limit", len(content), c.cfg.MaxDocumentSize), nil)
	}
	return c.ix.Add(title, content)
}

// Flush uploads every sealed document and the encrypted posting batch to
// the server, then persists the dictionary and corpus statistics. Failures
// are recoverable: the posting log and document map are kept, so Flush can
// be called again. The indexer reports the flushed state as soon as the
// batches are built, even if the upload then fails.
func (c *Client) Flush(ctx context.Context) error {
	start := time.Now()
	err := c.flush(ctx)
	c.met.RecordFlush(err == nil, time.Since(start))
	if err != nil {
		c.log.Error("flush failed", "error", err)
	}
	return err
}

func (c *Client) flush(ctx context.Context) error {
	storage, err := c.ix.EncryptedDocStorage()
	if err != nil {
		return err
	}
	upd := c.ix.EncryptedIndex()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for id, doc := range storage {
		g.Go(func() error {
			return c.api.PutDocument(gctx, id, doc)
		})
	}
	if err := g.Wait(); err != nil {
		return errors.WrapRetryable(errors.CategoryNetwork, errors.SeverityMedium, "document upload failed", err)
	}

	if err := c.api.PostIndex(ctx, upd); err != nil {
		return errors.WrapRetryable(errors.CategoryNetwork, errors.SeverityMedium, "index upload failed", err)
	}

	terms, stats := c.ix.Snapshot()
	if err := c.store.SaveIndex(terms, stats); err != nil {
		return errors.StorageError("failed to persist index state", err)
	}

	c.log.Batch(len(upd.Add)).Info("flush complete", "documents", len(storage))
	return nil
}

// Search expands the query into lookup keys, ranks the decoded postings,
// fetches the top-k sealed documents, and returns them opened, in score
// order. Transport exhaustion and deadline expiry degrade to an empty
// ranked list; a stored corpus that no longer opens under the document key
// surfaces as a fatal crypto error.
func (c *Client) Search(ctx context.Context, text string, topK int) ([]Result, error) {
	start := time.Now()
	defer func() { c.met.RecordSearch(time.Since(start)) }()

	q := c.ix.Plan(text)
	if len(q.Keys) == 0 {
		// No known term: nothing to ask the server.
		return []Result{}, nil
	}

	values, err := c.api.Lookup(ctx, q.Keys)
	if err != nil {
		if cat := errors.GetCategory(err); cat == errors.CategoryNetwork || cat == errors.CategoryTimeout {
			c.log.Warn("search degraded to empty result", "error", err)
			return []Result{}, nil
		}
		return nil, err
	}

	ranked, err := c.ix.Rank(q, values)
	if err != nil {
		return nil, err
	}
	if topK < 0 {
		topK = 0
	}
	if topK < len(ranked) {
		ranked = ranked[:topK]
	}

	return c.fetchRanked(ctx, ranked)
}

// fetchRanked retrieves and opens the ranked documents in parallel,
// preserving rank order in the returned slice. Documents the server no
// longer has are skipped; a document that is present but will not open
// under the document key is skipped too, unless nothing opens at all,
// which indicates key loss.
func (c *Client) fetchRanked(ctx context.Context, ranked []indexer.ScoredDoc) ([]Result, error) {
	type slot struct {
		doc      index.Document
		ok       bool
		openFail bool
	}
	slots := make([]slot, len(ranked))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, sd := range ranked {
		g.Go(func() error {
			sealed, err := c.api.GetDocument(gctx, sd.ID)
			if err != nil {
				c.met.RecordFetch(false)
				c.log.Doc(sd.ID).Warn("ranked document missing from server", "error", err)
				return nil
			}
			doc, err := c.keys.OpenDocument(sealed)
			if err != nil {
				c.met.OpenFailures.Inc()
				slots[i].openFail = true
				c.log.Doc(sd.ID).Error("failed to open sealed document", "error", err)
				return nil
			}
			c.met.RecordFetch(true)
			slots[i] = slot{doc: doc, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.TimeoutError("document fetch cancelled", err)
	}

	results := make([]Result, 0, len(ranked))
	openFailures := 0
	for i, s := range slots {
		if s.openFail {
			openFailures++
			continue
		}
		if s.ok {
			results = append(results, Result{Document: s.doc, Score: ranked[i].Score})
		}
	}

	// Every fetched document refused to open: the document key does not
	// match the stored corpus.
	if openFailures > 0 && len(results) == 0 {
		return nil, errors.KeyLossError("document key does not open any stored document", nil)
	}
	return results, nil
}

// Lookup runs the query expansion and returns the decoded posting metadata
// without fetching documents. Misses and undecodable values are skipped.
func (c *Client) Lookup(ctx context.Context, text string) ([]index.DocumentMeta, error) {
	q := c.ix.Plan(text)
	if len(q.Keys) == 0 {
		return []index.DocumentMeta{}, nil
	}

	values, err := c.api.Lookup(ctx, q.Keys)
	if err != nil {
		return nil, err
	}

	metas := make([]index.DocumentMeta, 0, len(values))
	for i, value := range values {
		if len(value) == 0 {
			c.met.ServerMisses.Inc()
			continue
		}
		meta, err := c.ix.Meta(q.Terms[i].Term, value)
		if err != nil {
			c.met.DecodeFailures.Inc()
			continue
		}
		metas = append(metas, meta)
	}

	// Deterministic order for callers: by document id, stable in slot order.
	sort.SliceStable(metas, func(i, j int) bool { return metas[i].DocID < metas[j].DocID })
	return metas, nil
}

// State returns the indexer lifecycle state.
func (c *Client) State() indexer.State {
	return c.ix.State()
}

// Stats returns the corpus statistics.
func (c *Client) Stats() index.CorpusStats {
	return c.ix.Stats()
}

// Metrics returns the client's metrics registry.
func (c *Client) Metrics() *metrics.Metrics {
	return c.met
}

// Close releases the state store. The client must not be used afterwards.
func (c *Client) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.store.Close()
}
