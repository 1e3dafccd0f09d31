// Package keys implements hierarchical deterministic key derivation for
// wallet accounts: BIP-32 keys, era-specific derivation paths, mnemonics
// and account checksums. Everything here is pure: no I/O, no shared state.
package keys

import (
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// SeedSize is the length of a BIP-39 seed in bytes (512 bits).
const SeedSize = 64

// ExtendedKeySize is the length of a serialized extended key
// (78 bytes plus a 4-byte checksum).
const ExtendedKeySize = 82

// HDKey represents a hierarchical deterministic key (BIP-32).
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// MasterKeyFromBytes accepts either a 64-byte seed or an 82-byte serialized
// extended private key at depth 0.
func MasterKeyFromBytes(b []byte) (*HDKey, error) {
	switch len(b) {
	case SeedSize:
		return NewMasterKey(b)
	case ExtendedKeySize:
		k, err := ParseExtendedKey(b)
		if err != nil {
			return nil, err
		}
		if !k.IsPrivate() || k.Depth() != 0 {
			return nil, fmt.Errorf("master key must be a private key at depth 0")
		}
		return k, nil
	default:
		return nil, fmt.Errorf("master key material must be %d or %d bytes, got %d",
			SeedSize, ExtendedKeySize, len(b))
	}
}

// ParseExtendedKey decodes an 82-byte serialized extended key.
func ParseExtendedKey(b []byte) (*HDKey, error) {
	if len(b) != ExtendedKeySize {
		return nil, fmt.Errorf("extended key must be %d bytes, got %d", ExtendedKeySize, len(b))
	}
	// Deserialize aliases its input.
	buf := make([]byte, len(b))
	copy(buf, b)
	k, err := bip32.Deserialize(buf)
	if err != nil {
		return nil, fmt.Errorf("deserialize extended key: %w", err)
	}
	if !k.IsPrivate {
		if err := crypto.ValidatePublicKey(k.Key); err != nil {
			return nil, err
		}
	}
	return &HDKey{key: k}, nil
}

// AccountKeyFromHex decodes the hex form of a serialized account public key.
func AccountKeyFromHex(s string) (*HDKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("account key hex: %w", err)
	}
	k, err := ParseExtendedKey(b)
	if err != nil {
		return nil, err
	}
	if k.IsPrivate() {
		return nil, fmt.Errorf("account key must be public")
	}
	if k.Depth() != uint8(LevelAccount) {
		return nil, fmt.Errorf("account key depth %d, want %d", k.Depth(), LevelAccount)
	}
	return k, nil
}

// DeriveChild derives a child key at the given index.
// For hardened derivation, use Harden(index).
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %s: %w", indexString(index), err)
	}
	return &HDKey{key: child}, nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// PrivateKeyBytes returns the raw 32-byte private key,
// or nil for a public-only key.
func (k *HDKey) PrivateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// PublicKeyBytes returns the compressed 33-byte public key.
func (k *HDKey) PublicKeyBytes() []byte {
	return k.key.PublicKey().Key
}

// ChainCode returns a copy of the 32-byte chain code.
func (k *HDKey) ChainCode() []byte {
	out := make([]byte, len(k.key.ChainCode))
	copy(out, k.key.ChainCode)
	return out
}

// KeyHash returns the credential hash of the public key.
func (k *HDKey) KeyHash() types.KeyHash {
	return crypto.KeyHashFromPubKey(k.PublicKeyBytes())
}

// Signer returns a Schnorr signer for the private key.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	priv := k.PrivateKeyBytes()
	if priv == nil {
		return nil, fmt.Errorf("cannot create signer from public key")
	}
	return crypto.PrivateKeyFromBytes(priv)
}

// IsPrivate returns true if this key contains a private key.
func (k *HDKey) IsPrivate() bool {
	return k.key.IsPrivate
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// Neuter returns a public-key-only copy.
func (k *HDKey) Neuter() *HDKey {
	return &HDKey{key: k.key.PublicKey()}
}

// Serialize returns the 82-byte serialized extended key.
func (k *HDKey) Serialize() ([]byte, error) {
	b, err := k.key.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize key: %w", err)
	}
	return b, nil
}

// Hex returns the hex form of Serialize, or "" if serialization fails.
func (k *HDKey) Hex() string {
	b, err := k.Serialize()
	if err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
