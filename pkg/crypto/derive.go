package crypto

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/opd-ai/go-emb25/pkg/index"
)

// prf computes SHA3-256(secret || term || be64(occ)), the keyed
// pseudorandom function both derivations are built on. The secret prefix
// makes the digest unpredictable without the key; the big-endian occurrence
// id separates repeated terms.
func prf(secret []byte, term string, occ uint64) [32]byte {
	h := sha3.New256()
	h.Write(secret)
	h.Write([]byte(term))
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], occ)
	h.Write(be[:])

	var out [32]byte
	h.Sum(out[:0])
	return out
}

// LookupKey derives the 32-byte opaque key under which the server stores
// the posting for (term, occ). A fixed keyring makes this a pure function
// of its inputs.
func (k *Keyring) LookupKey(term string, occ uint64) []byte {
	d := prf(k.idx[:], term, occ)
	return d[:]
}

// MaskMeta encodes meta as the 24-byte masked posting value for (term, occ):
// the PRF digest under the value-mask secret is split into three 8-byte
// words, each XORed with one meta field, in the order document id, term
// frequency, document size.
func (k *Keyring) MaskMeta(term string, occ uint64, meta index.DocumentMeta) []byte {
	d := prf(k.val[:], term, occ)

	out := make([]byte, MaskedValueSize)
	binary.BigEndian.PutUint64(out[0:8], binary.BigEndian.Uint64(d[0:8])^meta.DocID)
	binary.BigEndian.PutUint64(out[8:16], binary.BigEndian.Uint64(d[8:16])^meta.TermFreq)
	binary.BigEndian.PutUint64(out[16:24], binary.BigEndian.Uint64(d[16:24])^meta.DocSize)
	return out
}

// UnmaskMeta recovers the DocumentMeta from a masked value previously
// produced by MaskMeta for the same (term, occ). A value of any other
// length is rejected before any XOR is attempted.
func (k *Keyring) UnmaskMeta(term string, occ uint64, value []byte) (index.DocumentMeta, error) {
	if len(value) != MaskedValueSize {
		return index.DocumentMeta{}, fmt.Errorf("masked value must be %d bytes, got %d", MaskedValueSize, len(value))
	}

	d := prf(k.val[:], term, occ)
	return index.DocumentMeta{
		DocID:    binary.BigEndian.Uint64(d[0:8]) ^ binary.BigEndian.Uint64(value[0:8]),
		TermFreq: binary.BigEndian.Uint64(d[8:16]) ^ binary.BigEndian.Uint64(value[8:16]),
		DocSize:  binary.BigEndian.Uint64(d[16:24]) ^ binary.BigEndian.Uint64(value[16:24]),
	}, nil
}

// EncryptPosting converts one plaintext posting into its opaque server-side
// record.
func (k *Keyring) EncryptPosting(p index.Posting) EncryptedPosting {
	meta := index.DocumentMeta{
		DocID:    p.Doc.ID,
		TermFreq: p.Freq,
		DocSize:  uint64(len(p.Doc.Content)),
	}
	return EncryptedPosting{
		T: k.LookupKey(p.Term.Term, p.Term.Occ),
		D: k.MaskMeta(p.Term.Term, p.Term.Occ, meta),
	}
}

// EncryptIndexUpdate converts a batch of plaintext postings into the wire
// batch the server ingests.
func (k *Keyring) EncryptIndexUpdate(upd index.IndexUpdate) EncryptedIndexUpdate {
	out := EncryptedIndexUpdate{Add: make([]EncryptedPosting, 0, len(upd.Relations))}
	for _, p := range upd.Relations {
		out.Add = append(out.Add, k.EncryptPosting(p))
	}
	return out
}
