package addrchain

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Snapshot is the persisted form of a Chain.
type Snapshot struct {
	GapLimit         int             `json:"gapLimit"`
	BlockSize        int             `json:"blockSize"`
	Addresses        []string        `json:"addresses"`
	Used             *bitset.BitSet  `json:"used,omitempty"`
	AddressGenerator GeneratorParams `json:"addressGenerator"`
}

// Snapshot captures the chain's addresses, usage and generator.
func (c *Chain) Snapshot() Snapshot {
	return Snapshot{
		GapLimit:         c.gapSize,
		BlockSize:        c.blockSize,
		Addresses:        c.Addresses(),
		Used:             c.used.Clone(),
		AddressGenerator: c.gen.Params(),
	}
}

// FromSnapshot rebuilds a chain. Every stored address is re-derived and
// compared; a mismatch or duplicate fails with ErrSnapshotMismatch.
func FromSnapshot(s Snapshot) (*Chain, error) {
	gen, err := NewGenerator(s.AddressGenerator)
	if err != nil {
		return nil, err
	}
	c, err := New(gen, s.BlockSize, s.GapLimit)
	if err != nil {
		return nil, err
	}

	for i, addr := range s.Addresses {
		want, err := gen.Generate(uint32(i))
		if err != nil {
			return nil, fmt.Errorf("regenerate address %d: %w", i, err)
		}
		if want != addr {
			return nil, fmt.Errorf("%w: index %d", ErrSnapshotMismatch, i)
		}
		if _, dup := c.index[addr]; dup {
			return nil, fmt.Errorf("%w: duplicate address at %d", ErrSnapshotMismatch, i)
		}
		c.index[addr] = i
		c.addresses = append(c.addresses, addr)
	}

	if s.Used != nil {
		for i, ok := s.Used.NextSet(0); ok; i, ok = s.Used.NextSet(i + 1) {
			if int(i) >= len(c.addresses) {
				return nil, fmt.Errorf("%w: used flag %d beyond %d addresses", ErrSnapshotMismatch, i, len(c.addresses))
			}
			c.used.Set(i)
			c.highestUsed = int(i)
		}
	}

	// Snapshots written with a smaller gap are topped up.
	if err := c.Extend(); err != nil {
		return nil, err
	}
	return c, nil
}
