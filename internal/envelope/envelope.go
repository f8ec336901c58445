// Package envelope seals exam content with AES-256-CBC.
//
// An Envelope carries the IV, the PKCS#7 padded ciphertext and the fingerprint
// of the key that sealed it. The same format is used for the copy kept in the
// database and the copy published to the artifact store.
//
// CBC provides no integrity protection. A wrong key is detected by the key
// fingerprint, by the padding check, and finally by OpenJSON refusing
// plaintext that does not decode into the expected payload.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pavelanni/examvault/internal/keys"
)

// IVSize is the length of the initialization vector in bytes.
const IVSize = aes.BlockSize

// Envelope is a sealed payload.
type Envelope struct {
	IV         []byte
	Ciphertext []byte
	// KeyID is the fingerprint of the sealing key. Optional on input.
	KeyID string
}

type wireEnvelope struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	KeyID      string `json:"kid,omitempty"`
}

// randReader is swapped in tests.
var randReader io.Reader = rand.Reader

// Seal encrypts plaintext under key with a fresh random IV.
func Seal(plaintext []byte, key keys.Key) (*Envelope, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(randReader, iv); err != nil {
		return nil, fmt.Errorf("generate IV: %w", err)
	}

	padded := pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return &Envelope{IV: iv, Ciphertext: ciphertext, KeyID: key.Fingerprint()}, nil
}

// SealJSON marshals v and seals the result.
func SealJSON(v any, key keys.Key) (*Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return Seal(data, key)
}

// Validate checks the envelope's structure without decrypting it.
func (e *Envelope) Validate() error {
	if e == nil {
		return NewMalformedError("envelope is nil")
	}
	if len(e.IV) != IVSize {
		return NewMalformedError(fmt.Sprintf("IV must be %d bytes, got %d", IVSize, len(e.IV)))
	}
	if len(e.Ciphertext) == 0 {
		return NewMalformedError("ciphertext is empty")
	}
	if len(e.Ciphertext)%aes.BlockSize != 0 {
		return NewMalformedError(fmt.Sprintf("ciphertext length %d is not a multiple of the block size", len(e.Ciphertext)))
	}
	return nil
}

// Open decrypts the envelope with key.
func Open(e *Envelope, key keys.Key) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.KeyID != "" && e.KeyID != key.Fingerprint() {
		return nil, NewKeyMismatchError("envelope was sealed with a different key")
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, WrapKeyMismatchError(err, "create cipher")
	}
	plaintext := make([]byte, len(e.Ciphertext))
	cipher.NewCBCDecrypter(block, e.IV).CryptBlocks(plaintext, e.Ciphertext)

	plaintext, err = unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, WrapKeyMismatchError(err, "decrypt envelope")
	}
	return plaintext, nil
}

// OpenJSON decrypts the envelope and decodes the plaintext into v.
// Plaintext that is not valid JSON for v is reported as a key mismatch.
func OpenJSON(e *Envelope, key keys.Key, v any) error {
	plaintext, err := Open(e, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return WrapKeyMismatchError(err, "decode envelope payload")
	}
	return nil
}

// Marshal returns the JSON form of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{
		IV:         base64.StdEncoding.EncodeToString(e.IV),
		Ciphertext: base64.StdEncoding.EncodeToString(e.Ciphertext),
		KeyID:      e.KeyID,
	})
}

// String returns the JSON form, or an empty string for an invalid envelope.
func (e *Envelope) String() string {
	b, err := e.Marshal()
	if err != nil {
		return ""
	}
	return string(b)
}

// Parse decodes and validates the JSON form of an envelope.
func Parse(data []byte) (*Envelope, error) {
	var w wireEnvelope
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&w); err != nil {
		return nil, WrapMalformedError(err, "decode envelope")
	}
	if w.IV == "" {
		return nil, NewMalformedError("missing iv")
	}
	if w.Ciphertext == "" {
		return nil, NewMalformedError("missing ciphertext")
	}
	iv, err := base64.StdEncoding.DecodeString(w.IV)
	if err != nil {
		return nil, WrapMalformedError(err, "decode iv")
	}
	ct, err := base64.StdEncoding.DecodeString(w.Ciphertext)
	if err != nil {
		return nil, WrapMalformedError(err, "decode ciphertext")
	}
	e := &Envelope{IV: iv, Ciphertext: ct, KeyID: w.KeyID}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// ParseString is Parse for the text form stored in the database.
func ParseString(s string) (*Envelope, error) {
	return Parse([]byte(s))
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
