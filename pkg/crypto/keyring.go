// Package crypto provides the cryptographic core of the search client:
// the keyring, the keyed derivation of server-side lookup keys, the
// XOR-masked posting values, and the AEAD sealing of documents.
//
// Security considerations:
// - All random number generation uses crypto/rand (CSPRNG)
// - Key comparisons use constant-time operations
// - The keyring can be zeroed when the client shuts down
// - No plaintext term or document content appears in anything derived here
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// Sizes of the fixed-length values the scheme produces.
const (
	// KeySize is the size of each keyring secret
	KeySize = 32
	// LookupKeySize is the size of a derived server-side lookup key
	LookupKeySize = 32
	// MaskedValueSize is the size of a masked posting value: three
	// XOR-masked big-endian 64-bit words
	MaskedValueSize = 24
	// NonceSize is the AES-GCM nonce size used for document sealing
	NonceSize = 12
)

// HKDF info labels for deriving the three keyring secrets from one master
// secret. Changing any label invalidates every index built with it.
const (
	labelDocumentKey = "emb25/document-aead/v1"
	labelIndexKey    = "emb25/index-key/v1"
	labelValueMask   = "emb25/value-mask/v1"
)

// Keyring holds the client's three independent secrets: the document AEAD
// key, the lookup-key derivation secret, and the value-mask derivation
// secret. The secrets are read-only after construction and safe to share
// across goroutines.
type Keyring struct {
	doc [KeySize]byte
	idx [KeySize]byte
	val [KeySize]byte
}

// NewKeyring generates a keyring with three fresh random secrets.
func NewKeyring() (*Keyring, error) {
	k := &Keyring{}
	for _, secret := range [][]byte{k.doc[:], k.idx[:], k.val[:]} {
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate keyring secret: %w", err)
		}
	}
	return k, nil
}

// DeriveKeyring expands a single master secret of at least KeySize bytes
// into the three keyring secrets using HKDF-SHA3-256. The same master
// secret always yields the same keyring, which makes a keyring restorable
// from one stored seed.
func DeriveKeyring(master []byte) (*Keyring, error) {
	if len(master) < KeySize {
		return nil, fmt.Errorf("master secret must be at least %d bytes, got %d", KeySize, len(master))
	}

	newHash := func() hash.Hash { return sha3.New256() }
	k := &Keyring{}
	for _, sub := range []struct {
		label string
		out   []byte
	}{
		{labelDocumentKey, k.doc[:]},
		{labelIndexKey, k.idx[:]},
		{labelValueMask, k.val[:]},
	} {
		r := hkdf.New(newHash, master, nil, []byte(sub.label))
		if _, err := io.ReadFull(r, sub.out); err != nil {
			return nil, fmt.Errorf("hkdf expansion failed: %w", err)
		}
	}
	return k, nil
}

// LoadKeyring builds a keyring from three existing secrets, e.g. restored
// from the state store. Each secret must be exactly KeySize bytes.
func LoadKeyring(doc, idx, val []byte) (*Keyring, error) {
	if len(doc) != KeySize || len(idx) != KeySize || len(val) != KeySize {
		return nil, fmt.Errorf("keyring secrets must be %d bytes each", KeySize)
	}
	k := &Keyring{}
	copy(k.doc[:], doc)
	copy(k.idx[:], idx)
	copy(k.val[:], val)
	return k, nil
}

// MarshalBinary serializes the keyring as doc || idx || val. The caller is
// responsible for storing the result somewhere appropriate for key material.
func (k *Keyring) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 3*KeySize)
	out = append(out, k.doc[:]...)
	out = append(out, k.idx[:]...)
	out = append(out, k.val[:]...)
	return out, nil
}

// UnmarshalKeyring restores a keyring serialized by MarshalBinary.
func UnmarshalKeyring(data []byte) (*Keyring, error) {
	if len(data) != 3*KeySize {
		return nil, fmt.Errorf("keyring blob must be %d bytes, got %d", 3*KeySize, len(data))
	}
	return LoadKeyring(data[:KeySize], data[KeySize:2*KeySize], data[2*KeySize:])
}

// Equal compares two keyrings in constant time.
func (k *Keyring) Equal(other *Keyring) bool {
	if other == nil {
		return false
	}
	eq := subtle.ConstantTimeCompare(k.doc[:], other.doc[:])
	eq &= subtle.ConstantTimeCompare(k.idx[:], other.idx[:])
	eq &= subtle.ConstantTimeCompare(k.val[:], other.val[:])
	return eq == 1
}

// Zero wipes the keyring secrets. The keyring must not be used afterwards.
func (k *Keyring) Zero() {
	for _, secret := range [][]byte{k.doc[:], k.idx[:], k.val[:]} {
		for i := range secret {
			secret[i] = 0
		}
	}
}
