package wallet

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/addrchain"
	"github.com/Klingon-tech/klingwallet/internal/hw"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
	"github.com/Klingon-tech/klingwallet/internal/txcache"
	"github.com/Klingon-tech/klingwallet/internal/walletstore"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// State is a wallet's lifecycle stage.
type State int

// Lifecycle stages. A wallet moves Uninitialized → Initializing → Ready
// when created and Uninitialized → Restoring → Ready when restored.
const (
	StateUninitialized State = iota
	StateInitializing
	StateRestoring
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRestoring:
		return "restoring"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateUninitialized: {StateInitializing, StateRestoring},
	StateInitializing:  {StateReady},
	StateRestoring:     {StateReady},
}

// draft accumulates a wallet under construction. Only finish turns it
// into a *Wallet, so a half-built wallet never escapes the engine.
type draft struct {
	state State

	meta     walletstore.Meta
	network  config.Network
	impl     config.WalletImplementation
	account  *keys.HDKey
	pubHex   string
	hwInfo   *hw.DeviceInfo
	readOnly bool

	internal *addrchain.Chain
	external *addrchain.Chain
	cache    *txcache.Cache

	easyConfirmation bool
	lastGenerated    int
}

func (d *draft) advance(to State) error {
	for _, next := range transitions[d.state] {
		if next == to {
			d.state = to
			return nil
		}
	}
	return fmt.Errorf("wallet cannot move from %s to %s", d.state, to)
}

// setAccount records the account public key the wallet is built around.
func (d *draft) setAccount(account *keys.HDKey) {
	d.account = account.Neuter()
	d.pubHex = d.account.Hex()
}

// initialize materializes fresh chains and an empty cache.
func (d *draft) initialize() error {
	if err := d.advance(StateInitializing); err != nil {
		return err
	}
	for _, tag := range []addrchain.Tag{addrchain.Internal, addrchain.External} {
		gen, err := addrchain.NewGenerator(addrchain.GeneratorParams{
			AccountPubKey: d.pubHex,
			Type:          tag,
			Era:           d.impl.Era,
			NetworkTag:    d.network.ChainNetworkTag,
		})
		if err != nil {
			return err
		}
		c, err := addrchain.New(gen, d.impl.DiscoveryBlockSize, d.impl.DiscoveryGapSize)
		if err != nil {
			return err
		}
		if err := c.Initialize(); err != nil {
			return err
		}
		if tag == addrchain.Internal {
			d.internal = c
		} else {
			d.external = c
		}
	}
	d.cache = txcache.New()
	return nil
}

// finish derives the reward address and checksum and returns the ready
// wallet.
func (d *draft) finish(e *Engine) (*Wallet, error) {
	var stake types.KeyHash
	var reward types.Address
	if d.impl.Era.SupportsStaking() {
		sk, err := keys.StakingKey(d.account, d.impl.Era)
		if err != nil {
			return nil, fmt.Errorf("derive staking key: %w", err)
		}
		stake = sk.KeyHash()
		reward = types.NewRewardAddress(d.network.ChainNetworkTag, stake)
	}
	checksum, err := keys.ComputeChecksum(d.impl.Era, d.pubHex)
	if err != nil {
		return nil, err
	}
	if d.meta.Checksum.TextPart != "" && !strings.EqualFold(d.meta.Checksum.TextPart, checksum.TextPart) {
		return nil, fmt.Errorf("checksum %s does not match account key (%s)", d.meta.Checksum.TextPart, checksum.TextPart)
	}
	if err := d.advance(StateReady); err != nil {
		return nil, err
	}

	meta := d.meta
	meta.NetworkID = d.network.ID
	meta.ImplementationID = d.impl.ID
	meta.Checksum = checksum
	meta.IsHW = d.hwInfo != nil

	logger := log.WithWallet(e.logger, meta.ID)
	w := &Wallet{
		engine:           e,
		state:            d.state,
		meta:             meta,
		network:          d.network,
		impl:             d.impl,
		account:          d.account,
		pubHex:           d.pubHex,
		stake:            stake,
		reward:           reward,
		hwInfo:           d.hwInfo,
		readOnly:         d.readOnly,
		internal:         d.internal,
		external:         d.external,
		cache:            d.cache,
		easyConfirmation: d.easyConfirmation,
		lastGenerated:    d.lastGenerated,
		logger:           logger,
	}
	w.builder = txbuilder.New(d.network, d.internal, d.external).
		WithClock(e.now).
		WithAddressInUse(func(addr string) bool { return len(w.cache.PerAddressTxs(addr)) > 0 }).
		WithLogger(logger)
	return w, nil
}
