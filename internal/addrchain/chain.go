package addrchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/bits-and-blooms/bitset"
	"github.com/rs/zerolog"
)

var (
	// ErrDerivationExhausted is returned when an extension would pass the
	// highest derivable address index.
	ErrDerivationExhausted = errors.New("address derivation exhausted")

	// ErrNotOwned is returned when marking an address the chain does not hold.
	ErrNotOwned = errors.New("address not owned by chain")

	// ErrSnapshotMismatch is returned when a stored address differs from
	// the one the generator derives at the same index.
	ErrSnapshotMismatch = errors.New("address chain snapshot mismatch")
)

// UsedFilter returns the subset of addrs with on-chain activity.
type UsedFilter func(ctx context.Context, addrs []string) ([]string, error)

// Chain is an ordered, gap-limited sequence of addresses.
//
// Chain does no locking. Callers serialize access per wallet.
type Chain struct {
	gen       *Generator
	blockSize int
	gapSize   int
	maxIndex  uint32

	addresses   []string
	index       map[string]int
	used        *bitset.BitSet
	highestUsed int

	logger zerolog.Logger
}

// New creates an empty chain. Call Initialize before use.
func New(gen *Generator, blockSize, gapSize int) (*Chain, error) {
	if gen == nil {
		return nil, fmt.Errorf("addrchain: nil generator")
	}
	if blockSize <= 0 || gapSize <= 0 {
		return nil, fmt.Errorf("addrchain: block size %d and gap size %d must be positive", blockSize, gapSize)
	}
	return &Chain{
		gen:         gen,
		blockSize:   blockSize,
		gapSize:     gapSize,
		maxIndex:    keys.MaxAddressIndex,
		index:       make(map[string]int),
		used:        bitset.New(0),
		highestUsed: -1,
		logger:      log.Chain.With().Str("chain", string(gen.params.Type)).Logger(),
	}, nil
}

// Initialize materializes the first addresses. After it returns without
// error the chain holds at least one address and satisfies the gap invariant.
func (c *Chain) Initialize() error {
	return c.Extend()
}

// Extend grows the chain in blockSize steps until it holds
// highestUsed + gapSize + 1 addresses. It never removes addresses.
// Extension is all-or-nothing: on error the chain is unchanged.
func (c *Chain) Extend() error {
	required := c.requiredLength()
	if len(c.addresses) >= required {
		return nil
	}
	target := len(c.addresses)
	for target < required {
		target += c.blockSize
	}
	if uint64(target-1) > uint64(c.maxIndex) {
		return fmt.Errorf("%w: need index %d, ceiling %d", ErrDerivationExhausted, target-1, c.maxIndex)
	}

	fresh := make([]string, 0, target-len(c.addresses))
	for i := len(c.addresses); i < target; i++ {
		addr, err := c.gen.Generate(uint32(i))
		if err != nil {
			return fmt.Errorf("generate address %d: %w", i, err)
		}
		if _, dup := c.index[addr]; dup {
			return fmt.Errorf("generate address %d: duplicate of index %d", i, c.index[addr])
		}
		fresh = append(fresh, addr)
	}
	for _, addr := range fresh {
		c.index[addr] = len(c.addresses)
		c.addresses = append(c.addresses, addr)
	}
	c.logger.Debug().Int("count", len(fresh)).Int("length", len(c.addresses)).Msg("Chain extended")
	return nil
}

func (c *Chain) requiredLength() int {
	n := c.highestUsed + c.gapSize + 1
	if n < 1 {
		n = 1
	}
	return n
}

// MarkUsed records backend-confirmed activity on addrs and extends the
// chain to restore the gap invariant. Every address must belong to the
// chain: on ErrNotOwned nothing is marked.
func (c *Chain) MarkUsed(addrs []string) error {
	idx := make([]int, 0, len(addrs))
	for _, a := range addrs {
		i, ok := c.index[a]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotOwned, a)
		}
		idx = append(idx, i)
	}

	prevUsed, prevHighest := c.used.Clone(), c.highestUsed
	for _, i := range idx {
		c.used.Set(uint(i))
		if i > c.highestUsed {
			c.highestUsed = i
		}
	}
	if err := c.Extend(); err != nil {
		c.used, c.highestUsed = prevUsed, prevHighest
		return err
	}
	return nil
}

// Sync repeatedly asks filter which addresses beyond the highest used one
// have activity, marking them until no new activity is found.
func (c *Chain) Sync(ctx context.Context, filter UsedFilter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		window := append([]string(nil), c.addresses[c.highestUsed+1:]...)
		found, err := filter(ctx, window)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return nil
		}
		before := c.highestUsed
		if err := c.MarkUsed(found); err != nil {
			return err
		}
		if c.highestUsed == before {
			return nil
		}
		c.logger.Debug().Int("highest_used", c.highestUsed).Msg("Discovered activity")
	}
}

// AddressAt returns the address at index.
func (c *Chain) AddressAt(i int) (string, bool) {
	if i < 0 || i >= len(c.addresses) {
		return "", false
	}
	return c.addresses[i], true
}

// IndexOf returns the index of addr, or -1.
func (c *Chain) IndexOf(addr string) int {
	if i, ok := c.index[addr]; ok {
		return i
	}
	return -1
}

// IsMine reports whether addr belongs to the chain.
func (c *Chain) IsMine(addr string) bool {
	_, ok := c.index[addr]
	return ok
}

// IsUsed reports whether addr has confirmed activity.
func (c *Chain) IsUsed(addr string) bool {
	i, ok := c.index[addr]
	return ok && c.used.Test(uint(i))
}

// Addresses returns a copy of the materialized addresses in index order.
func (c *Chain) Addresses() []string {
	return append([]string(nil), c.addresses...)
}

// Len returns the number of materialized addresses.
func (c *Chain) Len() int { return len(c.addresses) }

// HighestUsed returns the highest used index, or -1.
func (c *Chain) HighestUsed() int { return c.highestUsed }

// TrailingUnused returns the number of addresses after the highest used one.
func (c *Chain) TrailingUnused() int {
	return len(c.addresses) - c.highestUsed - 1
}

// FirstUnused returns the lowest-index unused address.
func (c *Chain) FirstUnused() (string, int, bool) {
	return c.FirstUnusedExcept(nil)
}

// FirstUnusedExcept returns the lowest-index unused address skip does not
// reject. A nil skip rejects nothing.
func (c *Chain) FirstUnusedExcept(skip func(string) bool) (string, int, bool) {
	for i, a := range c.addresses {
		if c.used.Test(uint(i)) || (skip != nil && skip(a)) {
			continue
		}
		return a, i, true
	}
	return "", -1, false
}

// Addressing returns the derivation path of an owned address.
func (c *Chain) Addressing(addr string) (keys.Addressing, bool) {
	i, ok := c.index[addr]
	if !ok {
		return keys.Addressing{}, false
	}
	a, err := c.gen.Addressing(uint32(i))
	if err != nil {
		return keys.Addressing{}, false
	}
	return a, true
}

// Generator returns the chain's generator.
func (c *Chain) Generator() *Generator { return c.gen }

// GapSize returns the minimum number of trailing unused addresses.
func (c *Chain) GapSize() int { return c.gapSize }

// BlockSize returns the extension step.
func (c *Chain) BlockSize() int { return c.blockSize }
