// Package keys generates and encodes the symmetric keys that protect exam content.
//
// Every exam carries two independent keys: a storage key, which seals the
// question set at rest inside the service, and a publish key, which seals the
// copy placed in the public artifact store. Keys are persisted as hex text and
// must never be written to logs.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Size is the key length in bytes (AES-256).
const Size = 32

// Key is a 256-bit symmetric key.
type Key [Size]byte

// String returns the lowercase hex encoding of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Fingerprint identifies a key without revealing it: the first 8 bytes of its
// SHA-256 digest, hex encoded.
func (k Key) Fingerprint() string {
	sum := sha256.Sum256(k[:])
	return hex.EncodeToString(sum[:8])
}

// IsZero reports whether the key is all zero bytes.
func (k Key) IsZero() bool {
	return k == Key{}
}

// ParseKey decodes a hex encoded key.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("decode key: %w", err)
	}
	if len(b) != Size {
		return k, fmt.Errorf("key must be %d bytes, got %d", Size, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Generate draws a fresh key from crypto/rand.
func Generate() (Key, error) {
	return NewCustodian(nil).NewKey()
}

// Custodian hands out fresh keys from a random source.
type Custodian struct {
	rand io.Reader
}

// NewCustodian returns a custodian reading from r. A nil reader means crypto/rand.
func NewCustodian(r io.Reader) *Custodian {
	if r == nil {
		r = rand.Reader
	}
	return &Custodian{rand: r}
}

// NewKey returns a new random key.
func (c *Custodian) NewKey() (Key, error) {
	var k Key
	if _, err := io.ReadFull(c.rand, k[:]); err != nil {
		return k, fmt.Errorf("read random key: %w", err)
	}
	return k, nil
}

// NewKeyDistinctFrom returns a new random key that differs from other.
func (c *Custodian) NewKeyDistinctFrom(other Key) (Key, error) {
	for {
		k, err := c.NewKey()
		if err != nil {
			return k, err
		}
		if k != other {
			return k, nil
		}
	}
}
