// Package index defines the plaintext data model for the encrypted search
// index: documents, terms, postings, decoded posting metadata, and the
// client-side dictionary that issues per-term occurrence ids.
//
// Nothing in this package touches key material. Everything here exists only
// on the client; the encrypted counterparts that cross the wire live in
// pkg/crypto.
package index

// Document is a plaintext document held by the client. Only the AEAD-sealed
// form ever leaves the process.
type Document struct {
	ID      uint64 `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Term is one occurrence slot of a token in the global index. Occ is the
// value the dictionary counter had when the posting was created; it makes
// every posting's lookup key distinct even when the same token appears in
// many documents. Occurrence ids start at 1; zero is reserved.
type Term struct {
	Term string
	Occ  uint64
}

// Posting relates one term occurrence to the document it appeared in.
// Freq is the number of times the token occurs within that document.
// Postings exist only transiently on the client between ingest and flush.
type Posting struct {
	Term Term
	Freq uint64
	Doc  Document
}

// IndexUpdate is the batch of postings accumulated since construction.
// It is the plaintext input to the posting encoder.
type IndexUpdate struct {
	Relations []Posting
}

// DocumentMeta is the tuple recovered from one masked posting value:
// the document id, the total byte size of the document, and the term
// frequency of the posting's term within that document.
type DocumentMeta struct {
	DocID    uint64
	DocSize  uint64
	TermFreq uint64
}

// CorpusStats tracks the client-side aggregates BM25 needs: how many
// documents have been ingested and their cumulative byte size.
type CorpusStats struct {
	Documents uint64
	TotalSize uint64
}

// AvgDocLen returns the mean document length in bytes, or 0 for an
// empty corpus.
func (s CorpusStats) AvgDocLen() float64 {
	if s.Documents == 0 {
		return 0
	}
	return float64(s.TotalSize) / float64(s.Documents)
}
