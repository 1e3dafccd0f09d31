package config

import (
	"fmt"
	"time"

	"github.com/Klingon-tech/klingwallet/internal/keys"
)

// NetworkID identifies a network in wallet snapshots and metadata.
type NetworkID int

// Known network ids. ByronMainnet is a legacy id kept for snapshots
// written before the Shelley hard fork; it aliases ShelleyMainnet.
const (
	ByronMainnet   NetworkID = 0
	ShelleyMainnet NetworkID = 1
	ShelleyTestnet NetworkID = 300
)

// Denomination: 1 ADA = 10^6 lovelace.
const (
	Decimals = 6
	Lovelace = 1
	ADA      = 1_000_000
)

// EraParams describes slot timing from StartEpoch until the next era.
type EraParams struct {
	StartEpoch    uint64
	SlotLength    time.Duration
	SlotsPerEpoch uint64
}

// LinearFee is fee = Coefficient * size + Constant.
type LinearFee struct {
	Coefficient uint64
	Constant    uint64
}

// Fee returns the fee for a transaction of size bytes.
func (f LinearFee) Fee(size int) uint64 {
	return f.Coefficient*uint64(size) + f.Constant
}

// BackendParams are the backend's request limits for a network.
type BackendParams struct {
	URL                    string
	TxHistoryMaxAddresses  int
	FetchUTXOsMaxAddresses int
	FilterUsedMaxAddresses int
	// TxHistoryResponseLimit is the page size of history responses. A
	// shorter page is the last one.
	TxHistoryResponseLimit int
}

// Network holds the fixed parameters of one network.
type Network struct {
	ID   NetworkID
	Name string

	// ChainNetworkTag is the low nibble of address headers.
	ChainNetworkTag byte
	ProtocolMagic   uint32
	IsMainnet       bool

	// StartAt is the wall-clock time of slot 0.
	StartAt time.Time
	Eras    []EraParams

	Backend BackendParams

	LinearFee        LinearFee
	MinimumUTXOValue uint64
	// MinUTXOPerAsset is added to the minimum for each distinct asset an output carries.
	MinUTXOPerAsset uint64
	KeyDeposit      uint64
	PoolDeposit     uint64
	// TTLOffset is the number of slots a transaction stays valid after construction.
	TTLOffset uint64
	MaxTxSize int

	// Implementations lists the wallet implementations allowed on this network.
	Implementations []ImplementationID
}

// SupportsImplementation reports whether impl may be used on the network.
func (n Network) SupportsImplementation(impl ImplementationID) bool {
	for _, id := range n.Implementations {
		if id == impl {
			return true
		}
	}
	return false
}

// MinUTXO returns the minimum coin an output must carry given its asset count.
func (n Network) MinUTXO(assets int) uint64 {
	return n.MinimumUTXOValue + uint64(assets)*n.MinUTXOPerAsset
}

// ImplementationID identifies a wallet implementation (era and mnemonic shape).
type ImplementationID string

// Known wallet implementations.
const (
	ImplByron     ImplementationID = "haskell-byron"
	ImplShelley   ImplementationID = "haskell-shelley"
	ImplShelley24 ImplementationID = "haskell-shelley-24"
)

// WalletImplementation holds era and discovery parameters.
type WalletImplementation struct {
	ID            ImplementationID
	Era           keys.Era
	MnemonicWords int
	// DiscoveryBlockSize is the number of addresses materialized per extension.
	DiscoveryBlockSize int
	// DiscoveryGapSize is the minimum number of trailing unused addresses.
	DiscoveryGapSize int
}

// Registry is the explicit set of networks and implementations an engine
// is allowed to use.
type Registry struct {
	networks        map[NetworkID]Network
	implementations map[ImplementationID]WalletImplementation
	aliases         map[NetworkID]NetworkID
}

// NewRegistry builds a registry from explicit values.
func NewRegistry(networks []Network, impls []WalletImplementation) *Registry {
	r := &Registry{
		networks:        make(map[NetworkID]Network, len(networks)),
		implementations: make(map[ImplementationID]WalletImplementation, len(impls)),
		aliases:         map[NetworkID]NetworkID{ByronMainnet: ShelleyMainnet},
	}
	for _, n := range networks {
		r.networks[n.ID] = n
	}
	for _, i := range impls {
		r.implementations[i.ID] = i
	}
	return r
}

// DefaultRegistry returns the built-in mainnet and testnet parameters.
func DefaultRegistry() *Registry {
	return NewRegistry(
		[]Network{MainnetParams(), TestnetParams()},
		DefaultImplementations(),
	)
}

// Network returns the parameters for id.
func (r *Registry) Network(id NetworkID) (Network, error) {
	n, ok := r.networks[id]
	if !ok {
		return Network{}, fmt.Errorf("unknown network id %d", id)
	}
	return n, nil
}

// NetworkByName returns the network whose Name matches.
func (r *Registry) NetworkByName(name string) (Network, error) {
	for _, n := range r.networks {
		if n.Name == name {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("unknown network %q", name)
}

// Alias returns the current id a legacy network id maps to, if any.
func (r *Registry) Alias(id NetworkID) (NetworkID, bool) {
	to, ok := r.aliases[id]
	return to, ok
}

// Implementation returns the parameters for id.
func (r *Registry) Implementation(id ImplementationID) (WalletImplementation, error) {
	impl, ok := r.implementations[id]
	if !ok {
		return WalletImplementation{}, fmt.Errorf("unknown wallet implementation %q", id)
	}
	return impl, nil
}

// DefaultImplementations returns the three supported implementations.
func DefaultImplementations() []WalletImplementation {
	return []WalletImplementation{
		{ID: ImplByron, Era: keys.EraByron, MnemonicWords: 15, DiscoveryBlockSize: 50, DiscoveryGapSize: 20},
		{ID: ImplShelley, Era: keys.EraShelley, MnemonicWords: 15, DiscoveryBlockSize: 50, DiscoveryGapSize: 20},
		{ID: ImplShelley24, Era: keys.EraShelley, MnemonicWords: 24, DiscoveryBlockSize: 50, DiscoveryGapSize: 20},
	}
}

// MainnetParams returns mainnet parameters.
func MainnetParams() Network {
	return Network{
		ID:              ShelleyMainnet,
		Name:            "mainnet",
		ChainNetworkTag: 1,
		ProtocolMagic:   764824073,
		IsMainnet:       true,
		StartAt:         time.Unix(1506203091, 0).UTC(),
		Eras: []EraParams{
			{StartEpoch: 0, SlotLength: 20 * time.Second, SlotsPerEpoch: 21600},
			{StartEpoch: 208, SlotLength: time.Second, SlotsPerEpoch: 432000},
		},
		Backend: BackendParams{
			URL:                    "http://127.0.0.1:8082/api",
			TxHistoryMaxAddresses:  50,
			FetchUTXOsMaxAddresses: 50,
			FilterUsedMaxAddresses: 50,
			TxHistoryResponseLimit: 50,
		},
		LinearFee:        LinearFee{Coefficient: 44, Constant: 155381},
		MinimumUTXOValue: 1 * ADA,
		MinUTXOPerAsset:  ADA / 2,
		KeyDeposit:       2 * ADA,
		PoolDeposit:      500 * ADA,
		TTLOffset:        7200,
		MaxTxSize:        16384,
		Implementations:  []ImplementationID{ImplByron, ImplShelley, ImplShelley24},
	}
}

// TestnetParams returns testnet parameters.
func TestnetParams() Network {
	n := MainnetParams()
	n.ID = ShelleyTestnet
	n.Name = "testnet"
	n.ChainNetworkTag = 0
	n.ProtocolMagic = 1097911063
	n.IsMainnet = false
	n.StartAt = time.Unix(1563999616, 0).UTC()
	n.Eras = []EraParams{
		{StartEpoch: 0, SlotLength: 20 * time.Second, SlotsPerEpoch: 21600},
		{StartEpoch: 74, SlotLength: time.Second, SlotsPerEpoch: 432000},
	}
	n.Backend.URL = "http://127.0.0.1:8083/api"
	n.Implementations = append([]ImplementationID(nil), n.Implementations...)
	return n
}
