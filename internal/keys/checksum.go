package keys

import (
	"encoding/hex"
	"strings"

	"github.com/Klingon-tech/klingwallet/pkg/crypto"
)

// Checksum is the visual fingerprint of an account public key: an image
// seed and a short text form like "HKTE-4812".
type Checksum struct {
	ImagePart string `json:"ImagePart"`
	TextPart  string `json:"TextPart"`
}

// ComputeChecksum returns the era's checksum of an account public key hex.
func ComputeChecksum(era Era, pubKeyHex string) (Checksum, error) {
	s, err := era.spec()
	if err != nil {
		return Checksum{}, err
	}
	return s.checksum(strings.ToLower(pubKeyHex)), nil
}

func modernChecksum(pubKeyHex string) Checksum {
	d := crypto.Blake2b512([]byte(pubKeyHex))
	return checksumFromDigest(d[:])
}

func legacyChecksum(pubKeyHex string) Checksum {
	d := crypto.Hash([]byte(pubKeyHex))
	return checksumFromDigest(d[:])
}

func checksumFromDigest(d []byte) Checksum {
	text := make([]byte, 0, 9)
	for _, b := range d[:4] {
		text = append(text, 'A'+b%26)
	}
	text = append(text, '-')
	for _, b := range d[4:8] {
		text = append(text, '0'+b%10)
	}
	return Checksum{
		ImagePart: hex.EncodeToString(d),
		TextPart:  string(text),
	}
}
