// Package state persists the client state that cannot be rebuilt from the
// server: the keyring, the dictionary counters, and the corpus statistics.
// Losing them makes everything stored on the server undecodable.
//
// Two implementations are provided:
//   - memoryStore: in-memory, used in tests and for throwaway clients.
//   - boltStore: embedded key-value store (bbolt), used in production.
//
// Behavior is identical; only durability differs.
package state

import (
	"encoding/binary"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/opd-ai/go-emb25/pkg/crypto"
	"github.com/opd-ai/go-emb25/pkg/index"
)

// Store is the persistence interface for client state. All implementations
// must be safe for concurrent use.
type Store interface {
	// SaveKeyring stores the keyring. Overwrites any existing one.
	SaveKeyring(k *crypto.Keyring) error

	// LoadKeyring returns the stored keyring, or ok=false if none exists.
	LoadKeyring() (k *crypto.Keyring, ok bool, err error)

	// SaveIndex stores the dictionary counters and corpus statistics.
	SaveIndex(terms map[string]uint64, stats index.CorpusStats) error

	// LoadIndex returns the stored dictionary and statistics, or ok=false
	// if nothing has been saved yet.
	LoadIndex() (terms map[string]uint64, stats index.CorpusStats, ok bool, err error)

	// Close releases any resources held by the store (e.g. file handles).
	Close() error
}

// --- memoryStore ---------------------------------------------------------

type memoryStore struct {
	mu      sync.RWMutex
	keyring []byte
	terms   map[string]uint64
	stats   index.CorpusStats
	saved   bool
}

// NewMemory creates a store that lives only as long as the process.
func NewMemory() Store {
	return &memoryStore{}
}

func (s *memoryStore) SaveKeyring(k *crypto.Keyring) error {
	blob, err := k.MarshalBinary()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.keyring = blob
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) LoadKeyring() (*crypto.Keyring, bool, error) {
	s.mu.RLock()
	blob := s.keyring
	s.mu.RUnlock()
	if blob == nil {
		return nil, false, nil
	}
	k, err := crypto.UnmarshalKeyring(blob)
	if err != nil {
		return nil, false, err
	}
	return k, true, nil
}

func (s *memoryStore) SaveIndex(terms map[string]uint64, stats index.CorpusStats) error {
	copied := make(map[string]uint64, len(terms))
	for t, n := range terms {
		copied[t] = n
	}
	s.mu.Lock()
	s.terms = copied
	s.stats = stats
	s.saved = true
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) LoadIndex() (map[string]uint64, index.CorpusStats, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return nil, index.CorpusStats{}, false, nil
	}
	copied := make(map[string]uint64, len(s.terms))
	for t, n := range s.terms {
		copied[t] = n
	}
	return copied, s.stats, true, nil
}

func (s *memoryStore) Close() error { return nil }

// --- boltStore -----------------------------------------------------------

const (
	bucketKeyring    = "keyring"
	bucketDictionary = "dictionary"
	bucketStats      = "stats"

	keyKeyring   = "keys"
	keyDocuments = "documents"
	keyTotalSize = "total_size"
)

type boltStore struct {
	db *bolt.DB
}

// Open opens (or creates) the state database at path. The file is created
// with mode 0600; it contains key material.
func Open(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketKeyring, bucketDictionary, bucketStats} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create state buckets: %w", err)
	}

	return &boltStore{db: db}, nil
}

func (s *boltStore) SaveKeyring(k *crypto.Keyring) error {
	blob, err := k.MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketKeyring)).Put([]byte(keyKeyring), blob)
	})
}

func (s *boltStore) LoadKeyring() (*crypto.Keyring, bool, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketKeyring)).Get([]byte(keyKeyring)); v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if blob == nil {
		return nil, false, nil
	}
	k, err := crypto.UnmarshalKeyring(blob)
	if err != nil {
		return nil, false, err
	}
	return k, true, nil
}

func (s *boltStore) SaveIndex(terms map[string]uint64, stats index.CorpusStats) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		// Rewrite the dictionary bucket wholesale; counters only grow, but
		// a dropped term after a restore-from-older-state must not linger.
		if err := tx.DeleteBucket([]byte(bucketDictionary)); err != nil {
			return err
		}
		dict, err := tx.CreateBucket([]byte(bucketDictionary))
		if err != nil {
			return err
		}
		var be [8]byte
		for t, n := range terms {
			binary.BigEndian.PutUint64(be[:], n)
			if err := dict.Put([]byte(t), append([]byte(nil), be[:]...)); err != nil {
				return err
			}
		}

		sb := tx.Bucket([]byte(bucketStats))
		binary.BigEndian.PutUint64(be[:], stats.Documents)
		if err := sb.Put([]byte(keyDocuments), append([]byte(nil), be[:]...)); err != nil {
			return err
		}
		binary.BigEndian.PutUint64(be[:], stats.TotalSize)
		return sb.Put([]byte(keyTotalSize), append([]byte(nil), be[:]...))
	})
}

func (s *boltStore) LoadIndex() (map[string]uint64, index.CorpusStats, bool, error) {
	terms := make(map[string]uint64)
	var stats index.CorpusStats
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket([]byte(bucketStats))
		docs := sb.Get([]byte(keyDocuments))
		size := sb.Get([]byte(keyTotalSize))
		if docs == nil || size == nil {
			return nil
		}
		found = true
		stats.Documents = binary.BigEndian.Uint64(docs)
		stats.TotalSize = binary.BigEndian.Uint64(size)

		return tx.Bucket([]byte(bucketDictionary)).ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("corrupt dictionary entry for %q", k)
			}
			terms[string(k)] = binary.BigEndian.Uint64(v)
			return nil
		})
	})
	if err != nil {
		return nil, index.CorpusStats{}, false, err
	}
	if !found {
		return nil, index.CorpusStats{}, false, nil
	}
	return terms, stats, true, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
