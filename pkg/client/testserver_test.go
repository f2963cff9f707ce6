package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/opd-ai/go-emb25/pkg/crypto"
)

// fakeServer implements the four server endpoints over a keyed map and a
// blob map, matching the untrusted server's contract: it only ever sees
// opaque keys, masked values and sealed documents.
type fakeServer struct {
	mu       sync.Mutex
	docs     map[uint64]crypto.EncryptedDocument
	postings map[string][]byte

	searches  int
	conflicts int // same key written twice with different values
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{
		docs:     make(map[uint64]crypto.EncryptedDocument),
		postings: make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /index/{id}", fs.uploadDocument)
	mux.HandleFunc("GET /index/{id}", fs.getDocument)
	mux.HandleFunc("POST /index", fs.updateIndex)
	mux.HandleFunc("POST /search", fs.search)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return fs, ts
}

func (fs *fakeServer) uploadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var doc crypto.EncryptedDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fs.mu.Lock()
	fs.docs[id] = doc
	fs.mu.Unlock()
	w.Write([]byte("Document indexed"))
}

func (fs *fakeServer) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fs.mu.Lock()
	doc, ok := fs.docs[id]
	fs.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	json.NewEncoder(w).Encode(doc)
}

func (fs *fakeServer) updateIndex(w http.ResponseWriter, r *http.Request) {
	var upd crypto.EncryptedIndexUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fs.mu.Lock()
	for _, rec := range upd.Add {
		if old, dup := fs.postings[string(rec.T)]; dup && string(old) != string(rec.D) {
			fs.conflicts++
		}
		fs.postings[string(rec.T)] = rec.D
	}
	fs.mu.Unlock()
	w.Write([]byte("Index updated"))
}

func (fs *fakeServer) search(w http.ResponseWriter, r *http.Request) {
	var keys [][]byte
	if err := json.NewDecoder(r.Body).Decode(&keys); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fs.mu.Lock()
	fs.searches++
	values := make([][]byte, len(keys))
	for i, key := range keys {
		values[i] = fs.postings[string(key)] // nil slot on miss
	}
	fs.mu.Unlock()

	json.NewEncoder(w).Encode(values)
}

func (fs *fakeServer) searchCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.searches
}

func (fs *fakeServer) conflictCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.conflicts
}

func (fs *fakeServer) postingCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.postings)
}
