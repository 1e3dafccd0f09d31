package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/addrchain"
	"github.com/Klingon-tech/klingwallet/internal/backend"
	"github.com/Klingon-tech/klingwallet/internal/delegation"
	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/hw"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
	"github.com/Klingon-tech/klingwallet/internal/txcache"
	"github.com/Klingon-tech/klingwallet/internal/walletstore"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/rs/zerolog"
)

// ErrStakingUnsupported is returned for staking operations on a wallet
// whose era has no staking key.
var ErrStakingUnsupported = errors.New("wallet era does not support staking")

// Wallet is one account of an HD wallet.
type Wallet struct {
	engine *Engine
	state  State

	meta     walletstore.Meta
	network  config.Network
	impl     config.WalletImplementation
	account  *keys.HDKey
	pubHex   string
	stake    types.KeyHash
	reward   types.Address
	hwInfo   *hw.DeviceInfo
	readOnly bool

	internal *addrchain.Chain
	external *addrchain.Chain
	cache    *txcache.Cache
	builder  *txbuilder.Builder

	easyConfirmation bool
	lastGenerated    int
	// migrated is set when the stored snapshot is older than this one.
	migrated bool

	logger zerolog.Logger
}

// ID returns the wallet id.
func (w *Wallet) ID() string { return w.meta.ID }

// Name returns the display name.
func (w *Wallet) Name() string { return w.meta.Name }

// State returns the lifecycle stage. Wallets handed out by an Engine are
// always StateReady.
func (w *Wallet) State() State { return w.state }

// Network returns the network parameters.
func (w *Wallet) Network() config.Network { return w.network }

// Implementation returns the wallet implementation.
func (w *Wallet) Implementation() config.WalletImplementation { return w.impl }

// Era returns the derivation era.
func (w *Wallet) Era() keys.Era { return w.impl.Era }

// AccountPublicKeyHex returns the serialized account public key.
func (w *Wallet) AccountPublicKeyHex() string { return w.pubHex }

// Checksum returns the account key's visual fingerprint.
func (w *Wallet) Checksum() keys.Checksum { return w.meta.Checksum }

// RewardAddress returns the reward address, or nil for eras without staking.
func (w *Wallet) RewardAddress() types.Address {
	return append(types.Address(nil), w.reward...)
}

// IsHW reports whether the wallet signs on a hardware device.
func (w *Wallet) IsHW() bool { return w.hwInfo != nil }

// IsReadOnly reports whether the wallet can only watch.
func (w *Wallet) IsReadOnly() bool { return w.readOnly }

// HardwareInfo returns the paired device, or nil.
func (w *Wallet) HardwareInfo() *hw.DeviceInfo {
	if w.hwInfo == nil {
		return nil
	}
	info := *w.hwInfo
	return &info
}

// EasyConfirmation reports whether easy confirmation is enabled.
func (w *Wallet) EasyConfirmation() bool { return w.easyConfirmation }

// SetEasyConfirmation toggles easy confirmation. Save persists it.
func (w *Wallet) SetEasyConfirmation(enabled bool) { w.easyConfirmation = enabled }

// Meta returns the wallet's listing record.
func (w *Wallet) Meta() walletstore.Meta { return w.meta }

// Snapshot captures the full wallet state in the current format.
func (w *Wallet) Snapshot() walletstore.Snapshot {
	id := w.network.ID
	readOnly := w.readOnly
	return walletstore.Snapshot{
		Version:                   config.AppVersion,
		NetworkID:                 &id,
		ImplementationID:          w.impl.ID,
		HardwareInfo:              w.HardwareInfo(),
		IsReadOnly:                &readOnly,
		InternalChain:             w.internal.Snapshot(),
		ExternalChain:             w.external.Snapshot(),
		PublicKeyHex:              w.pubHex,
		TransactionCache:          w.cache.Snapshot(),
		IsEasyConfirmationEnabled: w.easyConfirmation,
		LastGeneratedAddressIndex: w.lastGenerated,
	}
}

// IsMine reports whether addr belongs to one of the wallet's chains.
func (w *Wallet) IsMine(addr string) bool {
	return w.internal.IsMine(addr) || w.external.IsMine(addr)
}

// Addresses returns every materialized address, internal chain first.
func (w *Wallet) Addresses() []string {
	return append(w.internal.Addresses(), w.external.Addresses()...)
}

// ExternalAddresses returns the receive chain.
func (w *Wallet) ExternalAddresses() []string { return w.external.Addresses() }

// InternalAddresses returns the change chain.
func (w *Wallet) InternalAddresses() []string { return w.internal.Addresses() }

// ReceiveAddresses returns the receive addresses shown so far.
func (w *Wallet) ReceiveAddresses() []string {
	return w.external.Addresses()[:w.lastGenerated+1]
}

// ReceiveAddress returns the first receive address without activity.
func (w *Wallet) ReceiveAddress() string {
	addr, _, _ := w.external.FirstUnused()
	return addr
}

// CanGenerateNewReceiveAddress reports whether another receive address
// may be shown: at most GapSize unused ones past the last used address.
func (w *Wallet) CanGenerateNewReceiveAddress() bool {
	if w.lastGenerated >= w.external.HighestUsed()+w.external.GapSize() {
		return false
	}
	return w.lastGenerated < w.external.Len()-1
}

// GenerateNewReceiveAddress shows one more receive address. It reports
// false when the gap limit forbids it.
func (w *Wallet) GenerateNewReceiveAddress() (string, bool) {
	if !w.CanGenerateNewReceiveAddress() {
		return "", false
	}
	w.lastGenerated++
	addr, _ := w.external.AddressAt(w.lastGenerated)
	return addr, true
}

// Sync discovers used addresses on both chains, then fetches history
// newer than the cache's sync point and marks every owned address it
// touches as used. Pending submissions the chain has passed the TTL of
// without confirming are dropped. On error the chains may have grown but
// the cache is unchanged.
func (w *Wallet) Sync(ctx context.Context) error {
	b := w.engine.backend
	for _, c := range []*addrchain.Chain{w.internal, w.external} {
		if err := c.Sync(ctx, b.FilterUsedAddresses); err != nil {
			return fmt.Errorf("discover addresses: %w", err)
		}
	}

	addrs := w.Addresses()
	if len(w.reward) > 0 {
		addrs = append(addrs, w.reward.Hex())
	}
	since := w.cache.LastUpdated()
	txs, err := b.FetchTxHistory(ctx, addrs, since)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	for _, c := range []*addrchain.Chain{w.internal, w.external} {
		var used []string
		for _, tx := range txs {
			for _, a := range tx.Addresses() {
				if c.IsMine(a) && !c.IsUsed(a) {
					used = append(used, a)
				}
			}
		}
		if err := c.MarkUsed(used); err != nil {
			return err
		}
	}
	if err := w.cache.Update(txs); err != nil {
		return errs.Wrap(err, "update transaction cache")
	}

	var expired []types.Hash
	if slot, err := w.network.TimeToSlot(w.engine.now()); err == nil {
		expired = w.cache.ExpirePending(slot.AbsoluteSlot)
	}
	w.logger.Debug().
		Int("fetched", len(txs)).
		Int("cached", w.cache.Len()).
		Int("expired", len(expired)).
		Time("since", since).
		Msg("Wallet synced")
	return nil
}

// Transactions returns the cached history in chain order.
func (w *Wallet) Transactions() []txcache.Transaction {
	return w.cache.Transactions()
}

// Utxos returns the spendable outputs derived from cached history.
func (w *Wallet) Utxos() []types.Utxo {
	return w.cache.Utxos(w.IsMine)
}

// FetchUtxos asks the backend for the wallet's current outputs.
func (w *Wallet) FetchUtxos(ctx context.Context) ([]types.Utxo, error) {
	return w.engine.backend.FetchUTXOs(ctx, w.Addresses())
}

// Balance sums the cached spendable outputs.
func (w *Wallet) Balance() types.Value {
	return Sum(w.Utxos())
}

// Sum adds up the value of utxos.
func Sum(utxos []types.Utxo) types.Value {
	var total types.Value
	for _, u := range utxos {
		total = total.Add(u.Amount)
	}
	return total
}

// DelegationStatus replays the reward address's cached certificates.
func (w *Wallet) DelegationStatus() delegation.Status {
	if len(w.reward) == 0 {
		return delegation.Status{}
	}
	return delegation.StatusFromCertificates(w.cache.Certificates(w.reward.Hex()))
}

// AccountState fetches the reward address's state from the backend.
func (w *Wallet) AccountState(ctx context.Context) (*backend.AccountState, error) {
	if len(w.reward) == 0 {
		return nil, ErrStakingUnsupported
	}
	return w.engine.backend.AccountState(ctx, w.reward.Hex())
}

// PoolInfo fetches metadata of stake pools.
func (w *Wallet) PoolInfo(ctx context.Context, ids []string) (map[string]backend.PoolInfo, error) {
	return w.engine.backend.PoolInfo(ctx, ids)
}

// TokenInfo fetches metadata of native assets.
func (w *Wallet) TokenInfo(ctx context.Context, ids []types.AssetID) (map[types.AssetID]backend.TokenInfo, error) {
	return w.engine.backend.TokenInfo(ctx, ids)
}

// FundInfo fetches the voting fund schedule.
func (w *Wallet) FundInfo(ctx context.Context) (*backend.FundInfo, error) {
	return w.engine.backend.FundInfo(ctx)
}
