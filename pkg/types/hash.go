// Package types defines the primitive values shared by the wallet engine:
// hashes, key hashes, addresses, multi-asset values and UTXOs.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the length of a transaction or auxiliary-data hash in bytes.
const HashSize = 32

// KeyHashSize is the length of a payment or staking key hash in bytes.
const KeyHashSize = 28

// Hash represents a 256-bit hash value.
type Hash [HashSize]byte

// KeyHash is the 224-bit hash of a public key. It identifies payment
// credentials, stake credentials and pools.
type KeyHash [KeyHashSize]byte

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	return unmarshalHex(data, h[:])
}

// HexToHash converts a hex string to a Hash.
func HexToHash(s string) (Hash, error) {
	var h Hash
	if err := decodeFixedHex(s, h[:]); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// IsZero returns true if the key hash is all zeros.
func (k KeyHash) IsZero() bool {
	return k == KeyHash{}
}

// String returns the hex-encoded key hash.
func (k KeyHash) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalJSON encodes the key hash as a hex string.
func (k KeyHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a hex string into a key hash.
func (k *KeyHash) UnmarshalJSON(data []byte) error {
	return unmarshalHex(data, k[:])
}

// HexToKeyHash converts a 56-character hex string to a KeyHash.
func HexToKeyHash(s string) (KeyHash, error) {
	var k KeyHash
	if err := decodeFixedHex(s, k[:]); err != nil {
		return KeyHash{}, err
	}
	return k, nil
}

func unmarshalHex(data []byte, dst []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}
	return decodeFixedHex(s, dst)
}

func decodeFixedHex(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
