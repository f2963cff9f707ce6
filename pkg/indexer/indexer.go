// Package indexer provides the client-side orchestration of the encrypted
// index: ingesting documents, issuing occurrence ids from the dictionary,
// producing the encrypted flush batches, planning queries, and ranking
// decoded postings with BM25.
//
// All shared state (dictionary, document map, corpus statistics) is owned
// by the Indexer and mutated under one mutex. No method suspends while
// holding it; network I/O lives in pkg/client and pkg/transport.
package indexer

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/opd-ai/go-emb25/pkg/bm25"
	"github.com/opd-ai/go-emb25/pkg/crypto"
	"github.com/opd-ai/go-emb25/pkg/errors"
	"github.com/opd-ai/go-emb25/pkg/index"
	"github.com/opd-ai/go-emb25/pkg/logger"
	"github.com/opd-ai/go-emb25/pkg/metrics"
	"github.com/opd-ai/go-emb25/pkg/tokenizer"
)

// State tracks the indexer lifecycle: fresh until the first Add, dirty
// while unflushed postings exist, flushed once a batch has been produced.
// Add is legal in every state and moves a flushed indexer back to dirty.
type State int

const (
	// StateFresh means no document has been ingested yet
	StateFresh State = iota
	// StateDirty means ingested postings have not been flushed
	StateDirty
	// StateFlushed means the current batches have been produced
	StateFlushed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateDirty:
		return "dirty"
	case StateFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// Indexer owns the client's mutable search state.
type Indexer struct {
	keys *crypto.Keyring
	tok  tokenizer.Tokenizer
	log  *logger.Logger
	met  *metrics.Metrics

	mu       sync.Mutex
	dict     *index.Dictionary
	docs     map[uint64]index.Document
	postings []index.Posting
	stats    index.CorpusStats
	state    State
	scorer   bm25.Scorer
}

// New creates an indexer around the given keyring. A nil tokenizer, logger
// or metrics falls back to the defaults.
func New(keys *crypto.Keyring, tok tokenizer.Tokenizer, log *logger.Logger, met *metrics.Metrics) *Indexer {
	if tok == nil {
		tok = tokenizer.NewEnglish()
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if met == nil {
		met = metrics.New()
	}
	return &Indexer{
		keys:   keys,
		tok:    tok,
		log:    log.Component("indexer"),
		met:    met,
		dict:   index.NewDictionary(),
		docs:   make(map[uint64]index.Document),
		scorer: bm25.NewScorer(),
	}
}

// SetScorer replaces the BM25 parameters. Call before the first query;
// changing parameters between queries only changes future rankings.
func (ix *Indexer) SetScorer(s bm25.Scorer) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.scorer = s
}

// Add ingests one document: it assigns a random id, tokenizes the content,
// bumps the dictionary once per distinct token, and appends one posting per
// (token, document) pair. Nothing is mutated when validation fails.
func (ix *Indexer) Add(title, content string) (uint64, error) {
	tokens := ix.tok.Tokenize(content)
	if len(tokens) == 0 {
		return 0, errors.ValidationError("document produced no tokens", nil)
	}
	freqs := tokenizer.Frequencies(tokens)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	id, err := ix.freshDocID()
	if err != nil {
		return 0, errors.InternalError("failed to generate document id", err)
	}
	doc := index.Document{ID: id, Title: title, Content: content}

	// Iterate tokens in first-appearance order so posting order is
	// reproducible; the bump must precede the posting that uses its value.
	seen := make(map[string]bool, len(freqs))
	added := 0
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		occ := ix.dict.Bump(t)
		ix.postings = append(ix.postings, index.Posting{
			Term: index.Term{Term: t, Occ: occ},
			Freq: freqs[t],
			Doc:  doc,
		})
		added++
	}

	ix.docs[id] = doc
	ix.stats.Documents++
	ix.stats.TotalSize += uint64(len(content))
	ix.state = StateDirty

	ix.met.RecordIngest(int64(len(content)), int64(added), int64(ix.dict.Len()))
	ix.log.Doc(id).Debug("document ingested", "postings", added)
	return id, nil
}

// freshDocID draws random 64-bit ids until one misses the document map.
// Callers hold the mutex.
func (ix *Indexer) freshDocID() (uint64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		id := binary.BigEndian.Uint64(buf[:])
		if _, taken := ix.docs[id]; !taken {
			return id, nil
		}
	}
}

// EncryptedIndex maps every retained posting to its opaque (key, value)
// record. The posting log is kept, so a failed upload can be flushed again.
func (ix *Indexer) EncryptedIndex() crypto.EncryptedIndexUpdate {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	upd := ix.keys.EncryptIndexUpdate(index.IndexUpdate{Relations: ix.postings})
	if ix.state == StateDirty {
		ix.state = StateFlushed
	}
	return upd
}

// EncryptedDocStorage returns an AEAD-sealed copy of every stored document
// keyed by document id.
func (ix *Indexer) EncryptedDocStorage() (map[uint64]crypto.EncryptedDocument, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	out := make(map[uint64]crypto.EncryptedDocument, len(ix.docs))
	for id, doc := range ix.docs {
		sealed, err := ix.keys.SealDocument(doc)
		if err != nil {
			return nil, errors.CryptoError(fmt.Sprintf("failed to seal document %d", id), err)
		}
		out[id] = sealed
	}
	if ix.state == StateDirty {
		ix.state = StateFlushed
	}
	return out, nil
}

// Meta decodes one posting value returned by the server for the given
// cleartext term slot.
func (ix *Indexer) Meta(term index.Term, value []byte) (index.DocumentMeta, error) {
	meta, err := ix.keys.UnmaskMeta(term.Term, term.Occ, value)
	if err != nil {
		return index.DocumentMeta{}, errors.CryptoError("failed to decode posting value", err)
	}
	return meta, nil
}

// State returns the current lifecycle state.
func (ix *Indexer) State() State {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.state
}

// Stats returns the current corpus statistics.
func (ix *Indexer) Stats() index.CorpusStats {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.stats
}

// Freq returns the dictionary counter for a raw (already normalized) term.
func (ix *Indexer) Freq(term string) uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.dict.Freq(term)
}

// Snapshot copies the persistent part of the indexer state: the dictionary
// counters and the corpus statistics.
func (ix *Indexer) Snapshot() (map[string]uint64, index.CorpusStats) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.dict.Snapshot(), ix.stats
}

// Restore replaces dictionary and corpus statistics with persisted values
// from an earlier run. The document map stays empty; sealed documents live
// on the server and are fetched by id at search time.
func (ix *Indexer) Restore(terms map[string]uint64, stats index.CorpusStats) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.dict.Restore(terms)
	ix.stats = stats
	if stats.Documents > 0 {
		ix.state = StateFlushed
	}
}
