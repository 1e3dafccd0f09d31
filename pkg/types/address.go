package types

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/mr-tron/base58"
)

// AddressKind is the high nibble of an address header byte.
type AddressKind byte

// Address kinds.
const (
	KindBase   AddressKind = 0x00
	KindLegacy AddressKind = 0x80
	KindReward AddressKind = 0xe0
)

// MainnetTag is the network tag carried by mainnet addresses.
const MainnetTag byte = 1

// Bech32 prefixes for Shelley-era addresses.
const (
	HRPAddr        = "addr"
	HRPAddrTest    = "addr_test"
	HRPStake       = "stake"
	HRPStakeTest   = "stake_test"
	baseAddrLen    = 1 + 2*KeyHashSize
	rewardAddrLen  = 1 + KeyHashSize
	legacyAddrLen  = 1 + KeyHashSize + 4
	addressTagMask = 0x0f
)

// ErrInvalidAddress is returned for malformed address bytes or strings.
var ErrInvalidAddress = errors.New("invalid address")

// Address is the raw binary form of a wallet address. The header byte
// carries the kind in its high nibble and the network tag in its low nibble.
type Address []byte

// NewBaseAddress builds a base address from payment and stake key hashes.
func NewBaseAddress(tag byte, payment, stake KeyHash) Address {
	a := make(Address, 0, baseAddrLen)
	a = append(a, byte(KindBase)|tag&addressTagMask)
	a = append(a, payment[:]...)
	return append(a, stake[:]...)
}

// NewRewardAddress builds a reward (stake) address from a stake key hash.
func NewRewardAddress(tag byte, stake KeyHash) Address {
	a := make(Address, 0, rewardAddrLen)
	a = append(a, byte(KindReward)|tag&addressTagMask)
	return append(a, stake[:]...)
}

// NewLegacyAddress builds a legacy-era address with a trailing CRC32.
func NewLegacyAddress(tag byte, payment KeyHash) Address {
	a := make(Address, 0, legacyAddrLen)
	a = append(a, byte(KindLegacy)|tag&addressTagMask)
	a = append(a, payment[:]...)
	return binary.BigEndian.AppendUint32(a, crc32.ChecksumIEEE(a))
}

// Kind returns the address kind.
func (a Address) Kind() AddressKind {
	if len(a) == 0 {
		return 0xff
	}
	return AddressKind(a[0] &^ addressTagMask)
}

// NetworkTag returns the network tag from the header.
func (a Address) NetworkTag() byte {
	if len(a) == 0 {
		return 0
	}
	return a[0] & addressTagMask
}

// Validate checks the length and checksum for the address kind.
func (a Address) Validate() error {
	switch a.Kind() {
	case KindBase:
		if len(a) != baseAddrLen {
			return fmt.Errorf("%w: base address length %d", ErrInvalidAddress, len(a))
		}
	case KindReward:
		if len(a) != rewardAddrLen {
			return fmt.Errorf("%w: reward address length %d", ErrInvalidAddress, len(a))
		}
	case KindLegacy:
		if len(a) != legacyAddrLen {
			return fmt.Errorf("%w: legacy address length %d", ErrInvalidAddress, len(a))
		}
		body := a[:legacyAddrLen-4]
		if binary.BigEndian.Uint32(a[legacyAddrLen-4:]) != crc32.ChecksumIEEE(body) {
			return fmt.Errorf("%w: legacy address checksum", ErrInvalidAddress)
		}
	default:
		return fmt.Errorf("%w: unknown header %#x", ErrInvalidAddress, a.header())
	}
	return nil
}

func (a Address) header() byte {
	if len(a) == 0 {
		return 0
	}
	return a[0]
}

// PaymentKeyHash returns the payment credential of base and legacy addresses.
func (a Address) PaymentKeyHash() (KeyHash, bool) {
	var k KeyHash
	switch a.Kind() {
	case KindBase, KindLegacy:
		if len(a) < 1+KeyHashSize {
			return k, false
		}
		copy(k[:], a[1:1+KeyHashSize])
		return k, true
	}
	return k, false
}

// StakeKeyHash returns the stake credential of base and reward addresses.
func (a Address) StakeKeyHash() (KeyHash, bool) {
	var k KeyHash
	switch a.Kind() {
	case KindBase:
		if len(a) != baseAddrLen {
			return k, false
		}
		copy(k[:], a[1+KeyHashSize:])
		return k, true
	case KindReward:
		if len(a) != rewardAddrLen {
			return k, false
		}
		copy(k[:], a[1:])
		return k, true
	}
	return k, false
}

// Hex returns the hex encoding of the raw bytes.
func (a Address) Hex() string {
	return hex.EncodeToString(a)
}

// Equal reports byte equality.
func (a Address) Equal(o Address) bool {
	return bytes.Equal(a, o)
}

// String returns the network-specific text form: bech32 for Shelley-era
// kinds, base58 for legacy addresses.
func (a Address) String() string {
	mainnet := a.NetworkTag() == MainnetTag
	var hrp string
	switch a.Kind() {
	case KindLegacy:
		return base58.Encode(a)
	case KindReward:
		hrp = HRPStakeTest
		if mainnet {
			hrp = HRPStake
		}
	default:
		hrp = HRPAddrTest
		if mainnet {
			hrp = HRPAddr
		}
	}
	s, err := Bech32Encode(hrp, a)
	if err != nil {
		return a.Hex()
	}
	return s
}

// ParseAddress decodes the bech32, base58 or hex text form of an address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	if strings.HasPrefix(s, HRPAddr) || strings.HasPrefix(s, HRPStake) {
		hrp, data, err := Bech32Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		a := Address(data)
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if want := Address(data).String(); !strings.HasPrefix(want, hrp+"1") {
			return nil, fmt.Errorf("%w: prefix %q does not match header", ErrInvalidAddress, hrp)
		}
		return a, nil
	}

	if b, err := hex.DecodeString(s); err == nil {
		a := Address(b)
		if err := a.Validate(); err == nil {
			return a, nil
		}
	}

	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	a := Address(b)
	if a.Kind() != KindLegacy {
		return nil, fmt.Errorf("%w: not a legacy address", ErrInvalidAddress)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}
