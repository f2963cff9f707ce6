package crypto

// Wire shapes exchanged with the index server. []byte fields marshal to
// base64 strings under encoding/json; the server treats all of them as
// opaque.

// EncryptedDocument is a sealed document: AES-GCM nonce plus ciphertext.
type EncryptedDocument struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// EncryptedPosting is one opaque index record: a 32-byte lookup key and a
// 24-byte masked value.
type EncryptedPosting struct {
	T []byte `json:"t"`
	D []byte `json:"d"`
}

// EncryptedIndexUpdate is the batch body of POST /index.
type EncryptedIndexUpdate struct {
	Add []EncryptedPosting `json:"add"`
}
