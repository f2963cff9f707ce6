package indexer

import (
	"sort"

	"github.com/opd-ai/go-emb25/pkg/errors"
	"github.com/opd-ai/go-emb25/pkg/index"
	"github.com/opd-ai/go-emb25/pkg/tokenizer"
)

// QueryTerm is one cleartext term slot of a planned query. Weight is the
// number of times the token appeared in the query text and multiplies the
// posting's BM25 score.
type QueryTerm struct {
	index.Term
	Weight float64
}

// Query pairs the cleartext term slots with the opaque lookup keys sent to
// the server. Terms[i] decodes the value the server returns for Keys[i];
// only Keys ever leaves the client.
type Query struct {
	Terms []QueryTerm
	Keys  [][]byte
}

// ScoredDoc is one ranked document reference with its cumulative score.
type ScoredDoc struct {
	ID    uint64
	Score float64
}

// Plan expands query text into one lookup key per known (term, occurrence)
// pair. For each distinct token the dictionary counter bounds the expansion;
// unknown tokens contribute nothing. A query whose tokens are all unknown
// yields an empty key list and needs no server round-trip.
func (ix *Indexer) Plan(text string) *Query {
	tokens := ix.tok.Tokenize(text)
	freqs := tokenizer.Frequencies(tokens)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	q := &Query{}
	seen := make(map[string]bool, len(freqs))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true

		n := ix.dict.Freq(t)
		for occ := uint64(1); occ <= n; occ++ {
			q.Terms = append(q.Terms, QueryTerm{
				Term:   index.Term{Term: t, Occ: occ},
				Weight: float64(freqs[t]),
			})
			q.Keys = append(q.Keys, ix.keys.LookupKey(t, occ))
		}
	}

	ix.met.RecordQuery(int64(len(q.Keys)))
	return q
}

// Rank consumes the server's value list for a planned query and returns
// document references ordered by descending cumulative BM25 score, with
// ascending document id as the deterministic tie-break.
//
// Empty slots are server misses and are skipped. Values of the wrong
// length are decode failures: fatal for that posting, never retried, and
// likewise skipped. Garbage metadata decoded under a corrupted mask key
// scores into nonsense document ids; ranking stays well-defined.
func (ix *Indexer) Rank(q *Query, values [][]byte) ([]ScoredDoc, error) {
	if len(values) != len(q.Keys) {
		return nil, errors.ProtocolError("server returned wrong number of values", nil).
			WithContext("want", len(q.Keys)).
			WithContext("got", len(values))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	scores := make(map[uint64]float64)
	for i, value := range values {
		if len(value) == 0 {
			ix.met.ServerMisses.Inc()
			continue
		}

		qt := q.Terms[i]
		meta, err := ix.keys.UnmaskMeta(qt.Term.Term, qt.Occ, value)
		if err != nil {
			ix.met.DecodeFailures.Inc()
			ix.log.Warn("skipping undecodable posting value", "len", len(value))
			continue
		}

		df := ix.dict.Freq(qt.Term.Term)
		scores[meta.DocID] += ix.scorer.Score(ix.stats, df, meta) * qt.Weight
	}

	ranked := make([]ScoredDoc, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, ScoredDoc{ID: id, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked, nil
}
