// Package wallet creates, restores and operates HD wallets.
//
// An Engine owns the collaborators shared by every wallet: the network
// registry, the vault holding encrypted master keys, the backend and the
// snapshot store. Wallets it returns are fully initialized.
//
// Wallets do no locking. Callers serialize operations per wallet id.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/backend"
	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/hw"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/txcache"
	"github.com/Klingon-tech/klingwallet/internal/vault"
	"github.com/Klingon-tech/klingwallet/internal/walletstore"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Wallet creation errors.
var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrEmptyPassword   = errors.New("password must not be empty")
)

// Backend is the indexing service a wallet syncs from and submits to.
type Backend interface {
	FetchUTXOs(ctx context.Context, addrs []string) ([]types.Utxo, error)
	FilterUsedAddresses(ctx context.Context, addrs []string) ([]string, error)
	FetchTxHistory(ctx context.Context, addrs []string, since time.Time) ([]txcache.Transaction, error)
	SubmitTransaction(ctx context.Context, signed []byte) error
	AccountState(ctx context.Context, rewardAddr string) (*backend.AccountState, error)
	PoolInfo(ctx context.Context, ids []string) (map[string]backend.PoolInfo, error)
	TokenInfo(ctx context.Context, ids []types.AssetID) (map[types.AssetID]backend.TokenInfo, error)
	FundInfo(ctx context.Context) (*backend.FundInfo, error)
}

// Vault seals wallet secrets under a password.
type Vault interface {
	Encrypt(id string, purpose vault.Purpose, payload, password []byte) ([]byte, error)
	Decrypt(id string, purpose vault.Purpose, password []byte) ([]byte, error)
	ChangePassword(id string, oldPassword, newPassword []byte) error
	Delete(id string) error
}

// Store persists wallet metadata and snapshots.
type Store interface {
	Save(meta walletstore.Meta, snap walletstore.Snapshot) error
	Load(id string) (walletstore.Meta, walletstore.Snapshot, error)
	List() ([]walletstore.Meta, error)
	Delete(id string) error
}

// Engine creates and restores wallets.
type Engine struct {
	registry *config.Registry
	vault    Vault
	backend  Backend
	store    Store
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates an engine. Only networks and implementations known to
// registry can be used.
func New(registry *config.Registry, v Vault, b Backend, s Store) *Engine {
	return &Engine{
		registry: registry,
		vault:    v,
		backend:  b,
		store:    s,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.Wallet,
	}
}

// WithClock sets the clock used for creation times and slot resolution.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(l zerolog.Logger) *Engine {
	e.logger = l
	return e
}

// resolve looks up a network and implementation and checks that they may
// be combined. Legacy network ids resolve to their current id.
func (e *Engine) resolve(networkID config.NetworkID, implID config.ImplementationID) (config.Network, config.WalletImplementation, error) {
	if to, ok := e.registry.Alias(networkID); ok {
		networkID = to
	}
	network, err := e.registry.Network(networkID)
	if err != nil {
		return config.Network{}, config.WalletImplementation{}, errs.InvalidState("%v", err)
	}
	impl, err := e.registry.Implementation(implID)
	if err != nil {
		return config.Network{}, config.WalletImplementation{}, errs.InvalidState("%v", err)
	}
	if !network.SupportsImplementation(impl.ID) {
		return config.Network{}, config.WalletImplementation{}, errs.InvalidState("implementation %s is not available on %s", impl.ID, network.Name)
	}
	return network, impl, nil
}

func (e *Engine) newDraft(name string, network config.Network, impl config.WalletImplementation) *draft {
	return &draft{
		meta: walletstore.Meta{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: e.now(),
		},
		network: network,
		impl:    impl,
	}
}

// CreateParams describe a wallet created from a mnemonic.
type CreateParams struct {
	Name             string
	Mnemonic         string
	Password         []byte
	NetworkID        config.NetworkID
	ImplementationID config.ImplementationID
}

// Create derives a wallet from a mnemonic, seals its master key in the
// vault and saves its first snapshot. Nothing is persisted unless every
// step succeeds.
func (e *Engine) Create(p CreateParams) (*Wallet, error) {
	network, impl, err := e.resolve(p.NetworkID, p.ImplementationID)
	if err != nil {
		return nil, err
	}
	if len(p.Password) == 0 {
		return nil, ErrEmptyPassword
	}
	if err := keys.CheckMnemonic(p.Mnemonic, impl.MnemonicWords); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	seed, err := keys.SeedFromMnemonic(p.Mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	defer zero(seed)
	master, err := keys.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	account, err := keys.DeriveAccountKey(master, impl.Era)
	if err != nil {
		return nil, err
	}

	d := e.newDraft(p.Name, network, impl)
	d.setAccount(account)
	if err := d.initialize(); err != nil {
		return nil, err
	}
	w, err := d.finish(e)
	if err != nil {
		return nil, err
	}

	secret, err := master.Serialize()
	if err != nil {
		return nil, err
	}
	defer zero(secret)
	if _, err := e.vault.Encrypt(w.ID(), vault.PurposeMasterKey, secret, p.Password); err != nil {
		return nil, fmt.Errorf("seal master key: %w", err)
	}
	if err := e.Save(w); err != nil {
		if derr := e.vault.Delete(w.ID()); derr != nil {
			w.logger.Error().Err(derr).Msg("Failed to remove master key after save error")
		}
		return nil, err
	}
	w.logger.Info().
		Str("network", network.Name).
		Str("implementation", string(impl.ID)).
		Str("checksum", w.Checksum().TextPart).
		Msg("Wallet created")
	return w, nil
}

// AccountKeyParams describe a wallet built from an account public key.
// A wallet with HardwareInfo signs on that device; without it the wallet
// is read-only.
type AccountKeyParams struct {
	Name                string
	AccountPublicKeyHex string
	NetworkID           config.NetworkID
	ImplementationID    config.ImplementationID
	HardwareInfo        *hw.DeviceInfo
}

// CreateFromAccountKey creates a wallet that never holds a master key.
func (e *Engine) CreateFromAccountKey(p AccountKeyParams) (*Wallet, error) {
	network, impl, err := e.resolve(p.NetworkID, p.ImplementationID)
	if err != nil {
		return nil, err
	}
	account, err := keys.AccountKeyFromHex(p.AccountPublicKeyHex)
	if err != nil {
		return nil, err
	}
	d := e.newDraft(p.Name, network, impl)
	if p.HardwareInfo != nil {
		if err := p.HardwareInfo.Validate(); err != nil {
			return nil, err
		}
		info := *p.HardwareInfo
		d.hwInfo = &info
	}
	d.readOnly = p.HardwareInfo == nil
	d.setAccount(account)
	if err := d.initialize(); err != nil {
		return nil, err
	}
	w, err := d.finish(e)
	if err != nil {
		return nil, err
	}
	if err := e.Save(w); err != nil {
		return nil, err
	}
	w.logger.Info().
		Str("network", network.Name).
		Bool("hw", w.IsHW()).
		Str("checksum", w.Checksum().TextPart).
		Msg("Wallet created from account key")
	return w, nil
}

// Restore rebuilds a wallet from a stored snapshot. Older snapshots are
// upgraded first; the result must pass the integrity check or Restore
// fails with errs.ErrInvalidState. Restore does not write anything.
func (e *Engine) Restore(meta walletstore.Meta, snap walletstore.Snapshot) (*Wallet, error) {
	up, err := migrate(e.registry, meta, snap)
	if err != nil {
		return nil, err
	}
	for _, name := range up.applied {
		e.logger.Debug().Str("wallet", meta.ID).Str("migration", name).Msg("Applied snapshot migration")
	}
	if up.newer {
		e.logger.Warn().Str("wallet", meta.ID).Str("version", snap.Version).Msg("Snapshot written by a newer version")
	}
	network, impl, err := checkIntegrity(e.registry, up.meta, up.snap)
	if err != nil {
		return nil, err
	}

	d := &draft{
		meta:             up.meta,
		network:          network,
		impl:             impl,
		easyConfirmation: up.snap.IsEasyConfirmationEnabled,
		lastGenerated:    up.snap.LastGeneratedAddressIndex,
		readOnly:         *up.snap.IsReadOnly,
	}
	if up.snap.HardwareInfo != nil {
		info := *up.snap.HardwareInfo
		d.hwInfo = &info
	}
	if err := d.advance(StateRestoring); err != nil {
		return nil, err
	}
	account, err := keys.AccountKeyFromHex(up.snap.PublicKeyHex)
	if err != nil {
		return nil, errs.InvalidState("account key: %v", err)
	}
	d.setAccount(account)
	if d.internal, err = restoreChain(up.snap.InternalChain); err != nil {
		return nil, err
	}
	if d.external, err = restoreChain(up.snap.ExternalChain); err != nil {
		return nil, err
	}
	if d.lastGenerated < 0 || d.lastGenerated >= d.external.Len() {
		return nil, errs.InvalidState("last generated address index %d outside %d addresses", d.lastGenerated, d.external.Len())
	}
	if d.cache, err = txcache.FromSnapshot(up.snap.TransactionCache); err != nil {
		return nil, errs.InvalidState("transaction cache: %v", err)
	}
	if up.resync {
		d.cache.ResetState()
	}

	w, err := d.finish(e)
	if err != nil {
		return nil, errs.InvalidState("%v", err)
	}
	w.migrated = len(up.applied) > 0 || snap.Version != config.AppVersion
	w.logger.Info().Bool("resync", up.resync).Str("from_version", snap.Version).Msg("Wallet restored")
	return w, nil
}

// Load restores a stored wallet. A snapshot upgraded during restore is
// saved back in the current format.
func (e *Engine) Load(id string) (*Wallet, error) {
	meta, snap, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	w, err := e.Restore(meta, snap)
	if err != nil {
		return nil, err
	}
	if w.migrated {
		if err := e.Save(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Save replaces the wallet's stored metadata and snapshot.
func (e *Engine) Save(w *Wallet) error {
	if err := e.store.Save(w.Meta(), w.Snapshot()); err != nil {
		return fmt.Errorf("save wallet %s: %w", w.ID(), err)
	}
	w.migrated = false
	return nil
}

// List returns the metadata of every stored wallet.
func (e *Engine) List() ([]walletstore.Meta, error) {
	return e.store.List()
}

// Remove deletes a wallet's snapshot and sealed secrets.
func (e *Engine) Remove(id string) error {
	if err := e.store.Delete(id); err != nil {
		return err
	}
	if err := e.vault.Delete(id); err != nil {
		return fmt.Errorf("remove secrets of %s: %w", id, err)
	}
	e.logger.Info().Str("wallet", id).Msg("Wallet removed")
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
