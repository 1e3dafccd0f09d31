// Package crypto provides the hashing and signing primitives used by the wallet.
package crypto

import (
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// Blake2b256 computes the 256-bit BLAKE2b digest used for transaction
// bodies and auxiliary data.
func Blake2b256(data []byte) types.Hash {
	return blake2b.Sum256(data)
}

// Blake2b512 computes the 512-bit BLAKE2b digest.
func Blake2b512(data []byte) [64]byte {
	return blake2b.Sum512(data)
}

// Blake2b224 computes the 224-bit BLAKE2b digest used for key hashes.
func Blake2b224(data []byte) types.KeyHash {
	h, err := blake2b.New(types.KeyHashSize, nil)
	if err != nil {
		// Only reachable with an invalid size or key length.
		panic(err)
	}
	h.Write(data)
	var out types.KeyHash
	copy(out[:], h.Sum(nil))
	return out
}

// KeyHashFromPubKey derives the credential hash of a compressed public key.
func KeyHashFromPubKey(pubKey []byte) types.KeyHash {
	return Blake2b224(pubKey)
}
