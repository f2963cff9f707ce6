package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/opd-ai/go-emb25/pkg/index"
)

// SealDocument AEAD-seals a document under the document key using
// AES-256-GCM with a fresh random 96-bit nonce. The plaintext is the JSON
// encoding of the document, which the opener reverses.
//
// Random nonces are fine for this corpus scale: collision probability
// reaches 2^-48 only after about 2^24 sealed documents.
func (k *Keyring) SealDocument(doc index.Document) (EncryptedDocument, error) {
	aead, err := k.documentAEAD()
	if err != nil {
		return EncryptedDocument{}, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedDocument{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	plaintext, err := json.Marshal(doc)
	if err != nil {
		return EncryptedDocument{}, fmt.Errorf("failed to encode document: %w", err)
	}

	return EncryptedDocument{
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// OpenDocument authenticates and decrypts a sealed document. It fails if
// the ciphertext was produced under a different key or has been modified.
func (k *Keyring) OpenDocument(ed EncryptedDocument) (index.Document, error) {
	aead, err := k.documentAEAD()
	if err != nil {
		return index.Document{}, err
	}

	if len(ed.Nonce) != NonceSize {
		return index.Document{}, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(ed.Nonce))
	}

	plaintext, err := aead.Open(nil, ed.Nonce, ed.Ciphertext, nil)
	if err != nil {
		return index.Document{}, fmt.Errorf("failed to open document: %w", err)
	}

	var doc index.Document
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return index.Document{}, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

func (k *Keyring) documentAEAD() (cipher.AEAD, error) {
	block, err := aes.NewCipher(k.doc[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
