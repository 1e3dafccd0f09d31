// Package addrchain manages a wallet's deterministic address spaces.
//
// A Chain materializes addresses for one derivation chain (external
// receive addresses or internal change addresses) strictly in index order
// and keeps at least gapSize unused addresses after the highest used one.
package addrchain

import (
	"fmt"

	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// Tag names a chain.
type Tag string

// Chain tags.
const (
	External Tag = "External"
	Internal Tag = "Internal"
)

// ChainIndex returns the derivation index of the chain.
func (t Tag) ChainIndex() (uint32, error) {
	switch t {
	case External:
		return keys.ChainExternal, nil
	case Internal:
		return keys.ChainInternal, nil
	default:
		return 0, fmt.Errorf("unknown chain tag %q", string(t))
	}
}

// GeneratorParams is the persisted form of a Generator.
type GeneratorParams struct {
	AccountPubKey string   `json:"accountPubKey"`
	Type          Tag      `json:"type"`
	Era           keys.Era `json:"era"`
	NetworkTag    byte     `json:"networkTag"`
}

// Generator derives the address at an index of one chain.
type Generator struct {
	params  GeneratorParams
	account *keys.HDKey
	chain   uint32
	stake   types.KeyHash
}

// NewGenerator builds a generator from an account public key.
func NewGenerator(p GeneratorParams) (*Generator, error) {
	account, err := keys.AccountKeyFromHex(p.AccountPubKey)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	chain, err := p.Type.ChainIndex()
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	if !p.Era.Valid() {
		return nil, fmt.Errorf("generator: unknown era %q", string(p.Era))
	}
	g := &Generator{params: p, account: account, chain: chain}
	if p.Era.SupportsStaking() {
		sk, err := keys.StakingKey(account, p.Era)
		if err != nil {
			return nil, fmt.Errorf("generator: staking key: %w", err)
		}
		g.stake = sk.KeyHash()
	}
	return g, nil
}

// Params returns the generator's persisted parameters.
func (g *Generator) Params() GeneratorParams {
	return g.params
}

// Addressing returns the full derivation path of index.
func (g *Generator) Addressing(index uint32) (keys.Addressing, error) {
	return keys.AddressAddressing(g.params.Era, g.chain, index)
}

// Generate returns the text form of the address at index.
func (g *Generator) Generate(index uint32) (string, error) {
	a, err := g.Addressing(index)
	if err != nil {
		return "", err
	}
	k, err := keys.DeriveFromAccount(g.account, g.params.Era, a)
	if err != nil {
		return "", err
	}
	if g.params.Era.SupportsStaking() {
		return types.NewBaseAddress(g.params.NetworkTag, k.KeyHash(), g.stake).String(), nil
	}
	return types.NewLegacyAddress(g.params.NetworkTag, k.KeyHash()).String(), nil
}
