package keys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tyler-smith/go-bip32"
)

// Derivation constants. Hardened indices carry HardenedOffset.
//
// Full path: m / purpose' / 1815' / 0' / chain / index
const (
	HardenedOffset = bip32.FirstHardenedChild

	// PurposeBIP44 is the legacy-era purpose.
	PurposeBIP44 = HardenedOffset + 44
	// PurposeCIP1852 is the staking-era purpose.
	PurposeCIP1852 = HardenedOffset + 1852

	CoinTypeADA  = HardenedOffset + 1815
	AccountIndex = HardenedOffset + 0

	ChainExternal = 0
	ChainInternal = 1
	// ChainStaking holds the staking key (staking era only).
	ChainStaking    = 2
	StakingKeyIndex = 0

	// MaxAddressIndex is the highest non-hardened address index.
	MaxAddressIndex = HardenedOffset - 1
)

// ErrInvalidPath is returned for derivation paths that do not fit the era.
var ErrInvalidPath = errors.New("invalid derivation path")

// Level is a position in the derivation hierarchy.
type Level int

// Derivation levels.
const (
	LevelRoot Level = iota
	LevelPurpose
	LevelCoinType
	LevelAccount
	LevelChain
	LevelAddress
)

// Harden returns the hardened form of i.
func Harden(i uint32) uint32 { return i | HardenedOffset }

// IsHardened reports whether i is a hardened index.
func IsHardened(i uint32) bool { return i >= HardenedOffset }

func indexString(i uint32) string {
	if IsHardened(i) {
		return strconv.FormatUint(uint64(i-HardenedOffset), 10) + "'"
	}
	return strconv.FormatUint(uint64(i), 10)
}

// Path is a sequence of derivation indices.
type Path []uint32

// String renders the path as m/1852'/1815'/0'/0/3.
func (p Path) String() string {
	var sb strings.Builder
	sb.WriteString("m")
	for _, i := range p {
		sb.WriteByte('/')
		sb.WriteString(indexString(i))
	}
	return sb.String()
}

// Clone returns a copy of the path.
func (p Path) Clone() Path {
	return append(Path(nil), p...)
}

// Addressing locates a key: Path[0] sits at StartLevel.
type Addressing struct {
	Path       Path  `json:"path"`
	StartLevel Level `json:"startLevel"`
}

// Chain returns the chain index of a full address path.
func (a Addressing) Chain() (uint32, bool) {
	i := int(LevelChain - a.StartLevel)
	if i < 0 || i >= len(a.Path) {
		return 0, false
	}
	return a.Path[i], true
}

// Era selects derivation constants for a wallet generation.
type Era string

// Wallet eras.
const (
	EraByron   Era = "byron"
	EraShelley Era = "shelley"
)

type eraSpec struct {
	purpose  uint32
	staking  bool
	checksum func(pubKeyHex string) Checksum
}

var eras = map[Era]eraSpec{
	EraByron:   {purpose: PurposeBIP44, staking: false, checksum: legacyChecksum},
	EraShelley: {purpose: PurposeCIP1852, staking: true, checksum: modernChecksum},
}

func (e Era) spec() (eraSpec, error) {
	s, ok := eras[e]
	if !ok {
		return eraSpec{}, fmt.Errorf("unknown era %q", string(e))
	}
	return s, nil
}

// Valid reports whether e is a known era.
func (e Era) Valid() bool {
	_, ok := eras[e]
	return ok
}

// Purpose returns the hardened purpose index of the era.
func (e Era) Purpose() (uint32, error) {
	s, err := e.spec()
	return s.purpose, err
}

// SupportsStaking reports whether accounts of the era carry a staking key.
func (e Era) SupportsStaking() bool {
	s, err := e.spec()
	return err == nil && s.staking
}

// AccountPath returns purpose / coin type / account for the era.
func AccountPath(era Era) (Path, error) {
	purpose, err := era.Purpose()
	if err != nil {
		return nil, err
	}
	return Path{purpose, CoinTypeADA, AccountIndex}, nil
}

// AddressAddressing returns the full addressing of an address key.
func AddressAddressing(era Era, chain, index uint32) (Addressing, error) {
	p, err := AccountPath(era)
	if err != nil {
		return Addressing{}, err
	}
	a := Addressing{Path: append(p, chain, index), StartLevel: LevelPurpose}
	if err := ValidatePath(era, a); err != nil {
		return Addressing{}, err
	}
	return a, nil
}

// StakingAddressing returns the addressing of the account's staking key.
func StakingAddressing(era Era) (Addressing, error) {
	return AddressAddressing(era, ChainStaking, StakingKeyIndex)
}

// ValidatePath checks that a full address path is consistent with era:
// purpose and coin type match, the account is hardened, the chain is known
// and the address index is not hardened.
func ValidatePath(era Era, a Addressing) error {
	spec, err := era.spec()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if a.StartLevel != LevelPurpose {
		return fmt.Errorf("%w: start level %d, want %d", ErrInvalidPath, a.StartLevel, LevelPurpose)
	}
	p := a.Path
	if len(p) != int(LevelAddress) {
		return fmt.Errorf("%w: %s has %d levels, want %d", ErrInvalidPath, p, len(p), LevelAddress)
	}
	if p[0] != spec.purpose {
		return fmt.Errorf("%w: purpose %s not valid for %s era", ErrInvalidPath, indexString(p[0]), era)
	}
	if p[1] != CoinTypeADA {
		return fmt.Errorf("%w: coin type %s", ErrInvalidPath, indexString(p[1]))
	}
	if !IsHardened(p[2]) {
		return fmt.Errorf("%w: account index must be hardened", ErrInvalidPath)
	}
	switch p[3] {
	case ChainExternal, ChainInternal:
	case ChainStaking:
		if !spec.staking {
			return fmt.Errorf("%w: %s era has no staking chain", ErrInvalidPath, era)
		}
	default:
		return fmt.Errorf("%w: unknown chain %s", ErrInvalidPath, indexString(p[3]))
	}
	if IsHardened(p[4]) {
		return fmt.Errorf("%w: address index must not be hardened", ErrInvalidPath)
	}
	return nil
}

// DeriveAccountKey derives the era's account key from a master key.
func DeriveAccountKey(master *HDKey, era Era) (*HDKey, error) {
	p, err := AccountPath(era)
	if err != nil {
		return nil, err
	}
	return master.DerivePath(p...)
}

// DeriveFromAccount derives the key at a validated full path from an
// account key (public or private). The path's account prefix must match.
func DeriveFromAccount(account *HDKey, era Era, a Addressing) (*HDKey, error) {
	if err := ValidatePath(era, a); err != nil {
		return nil, err
	}
	prefix, _ := AccountPath(era)
	for i, idx := range prefix {
		if a.Path[i] != idx {
			return nil, fmt.Errorf("%w: %s is outside account %s", ErrInvalidPath, a.Path, prefix)
		}
	}
	return account.DerivePath(a.Path[len(prefix):]...)
}

// StakingKey derives the staking key of an account.
func StakingKey(account *HDKey, era Era) (*HDKey, error) {
	a, err := StakingAddressing(era)
	if err != nil {
		return nil, err
	}
	return DeriveFromAccount(account, era, a)
}
