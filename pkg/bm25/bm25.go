// Package bm25 implements the Okapi BM25 ranking function over the
// decoded posting metadata. All inputs come from the client side: document
// frequency from the dictionary, corpus statistics from the indexer, and
// term frequency plus document length from unmasked posting values.
package bm25

import (
	"math"

	"github.com/opd-ai/go-emb25/pkg/index"
)

// Classical Okapi BM25 parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Scorer scores one posting at a time. The zero value is not usable; use
// NewScorer or fill both parameters.
type Scorer struct {
	K1 float64
	B  float64
}

// NewScorer returns a scorer with the classical parameters.
func NewScorer() Scorer {
	return Scorer{K1: DefaultK1, B: DefaultB}
}

// IDF computes ln(1 + (N - df + 0.5) / (df + 0.5)) for a corpus of
// docCount documents and a term appearing in docFreq of them.
func (s Scorer) IDF(docCount, docFreq uint64) float64 {
	n := float64(docCount)
	df := float64(docFreq)
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// Score computes the BM25 contribution of one posting: IDF times the
// saturated term-frequency component, normalized by the document length
// against the corpus average.
func (s Scorer) Score(stats index.CorpusStats, docFreq uint64, meta index.DocumentMeta) float64 {
	avgdl := stats.AvgDocLen()
	if avgdl == 0 {
		return 0
	}

	tf := float64(meta.TermFreq)
	docLen := float64(meta.DocSize)

	idf := s.IDF(stats.Documents, docFreq)
	return idf * tf * (s.K1 + 1) / (tf + s.K1*(1-s.B+s.B*docLen/avgdl))
}
