package index

// Dictionary maps each term to its global occurrence counter. The counter
// is bumped once per (term, document) pair during ingest, so it equals the
// number of documents the term has appeared in (the document frequency
// used for BM25 IDF) and doubles as the upper bound on occurrence ids the
// query planner must expand.
//
// Dictionary is not safe for concurrent use; the indexer serializes access.
type Dictionary struct {
	terms map[string]uint64
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{terms: make(map[string]uint64)}
}

// Bump increments the counter for term, initializing it to zero first, and
// returns the new value. The first Bump of a term returns 1.
func (d *Dictionary) Bump(term string) uint64 {
	d.terms[term]++
	return d.terms[term]
}

// Freq returns the current counter for term, or 0 if the term is unknown.
func (d *Dictionary) Freq(term string) uint64 {
	return d.terms[term]
}

// Len returns the number of distinct terms.
func (d *Dictionary) Len() int {
	return len(d.terms)
}

// Snapshot returns a copy of the term counters, suitable for persistence.
func (d *Dictionary) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, len(d.terms))
	for t, n := range d.terms {
		out[t] = n
	}
	return out
}

// Restore replaces the dictionary contents with the given counters.
func (d *Dictionary) Restore(terms map[string]uint64) {
	d.terms = make(map[string]uint64, len(terms))
	for t, n := range terms {
		d.terms[t] = n
	}
}
