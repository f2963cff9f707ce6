package bm25

import (
	"math"
	"testing"

	"github.com/opd-ai/go-emb25/pkg/index"
)

func TestIDFDecreasesWithDocFreq(t *testing.T) {
	s := NewScorer()

	rare := s.IDF(100, 1)
	common := s.IDF(100, 90)

	if rare <= common {
		t.Errorf("IDF(df=1)=%v should exceed IDF(df=90)=%v", rare, common)
	}
	if common <= 0 {
		t.Errorf("IDF must stay positive under the ln(1+x) form, got %v", common)
	}
}

func TestIDFKnownValue(t *testing.T) {
	s := NewScorer()

	// N=8, df=1: ln(1 + 7.5/1.5) = ln(6)
	got := s.IDF(8, 1)
	want := math.Log(6)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("IDF(8, 1) = %v, want %v", got, want)
	}
}

func TestScoreKnownValue(t *testing.T) {
	s := NewScorer()
	stats := index.CorpusStats{Documents: 2, TotalSize: 40} // avgdl 20
	meta := index.DocumentMeta{DocID: 1, TermFreq: 2, DocSize: 20}

	// doc_len == avgdl makes the normalization term collapse to k1 + tf.
	idf := s.IDF(2, 1)
	want := idf * 2 * (DefaultK1 + 1) / (2 + DefaultK1)

	got := s.Score(stats, 1, meta)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Score = %v, want %v", got, want)
	}
}

func TestScoreIncreasesWithTermFreq(t *testing.T) {
	s := NewScorer()
	stats := index.CorpusStats{Documents: 10, TotalSize: 500}

	low := s.Score(stats, 2, index.DocumentMeta{TermFreq: 1, DocSize: 50})
	high := s.Score(stats, 2, index.DocumentMeta{TermFreq: 5, DocSize: 50})

	if high <= low {
		t.Errorf("Score(tf=5)=%v should exceed Score(tf=1)=%v", high, low)
	}
}

func TestScorePenalizesLongDocuments(t *testing.T) {
	s := NewScorer()
	stats := index.CorpusStats{Documents: 10, TotalSize: 500}

	short := s.Score(stats, 2, index.DocumentMeta{TermFreq: 2, DocSize: 25})
	long := s.Score(stats, 2, index.DocumentMeta{TermFreq: 2, DocSize: 200})

	if short <= long {
		t.Errorf("Score(len=25)=%v should exceed Score(len=200)=%v", short, long)
	}
}

func TestScoreEmptyCorpus(t *testing.T) {
	s := NewScorer()

	got := s.Score(index.CorpusStats{}, 1, index.DocumentMeta{TermFreq: 1, DocSize: 10})
	if got != 0 {
		t.Errorf("Score on empty corpus = %v, want 0", got)
	}
}

func TestScoreGarbageMetaDoesNotPanic(t *testing.T) {
	s := NewScorer()
	stats := index.CorpusStats{Documents: 4, TotalSize: 160}

	// Metadata decoded under a corrupted mask key is uniformly random;
	// scoring it must stay finite-or-infinite arithmetic, never a panic.
	garbage := index.DocumentMeta{DocID: ^uint64(0), TermFreq: ^uint64(0), DocSize: ^uint64(0)}
	got := s.Score(stats, 2, garbage)
	if math.IsNaN(got) {
		t.Errorf("Score of garbage meta is NaN")
	}
}
