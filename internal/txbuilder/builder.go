// Package txbuilder assembles unsigned transactions from wallet intent.
//
// Building is read-only against the wallet: it never marks addresses used
// or removes UTXOs. Only a confirmed submission, seen by a later sync,
// changes wallet state.
package txbuilder

import (
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/rs/zerolog"
)

// Build errors outside the shared taxonomy.
var (
	ErrBelowMinUTXO    = errors.New("output below minimum UTXO value")
	ErrNetworkMismatch = errors.New("address belongs to another network")
	ErrNoOutputs       = errors.New("nothing to send")
)

// AddressSource is an address chain as the builder sees it.
// *addrchain.Chain implements it.
type AddressSource interface {
	Addressing(addr string) (keys.Addressing, bool)
	FirstUnused() (string, int, bool)
}

// skippingSource is an AddressSource that can pass over addresses.
type skippingSource interface {
	FirstUnusedExcept(skip func(string) bool) (string, int, bool)
}

// Builder builds unsigned transactions for one wallet.
type Builder struct {
	network  config.Network
	internal AddressSource
	external AddressSource
	inUse    func(addr string) bool
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a builder over the wallet's internal and external chains.
func New(network config.Network, internal, external AddressSource) *Builder {
	return &Builder{
		network:  network,
		internal: internal,
		external: external,
		now:      time.Now,
		logger:   log.Builder,
	}
}

// WithClock replaces the wall clock used when no reference time is given.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithAddressInUse makes ChangeAddress pass over addresses inUse reports,
// such as change of a submission no sync has confirmed yet.
func (b *Builder) WithAddressInUse(inUse func(addr string) bool) *Builder {
	b.inUse = inUse
	return b
}

// WithLogger replaces the builder's logger.
func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = l
	return b
}

// Network returns the builder's network parameters.
func (b *Builder) Network() config.Network { return b.network }

// ResolveSlot converts ref, or the current time when ref is zero, to chain time.
func (b *Builder) ResolveSlot(ref time.Time) (config.SlotInfo, error) {
	if ref.IsZero() {
		ref = b.now()
	}
	return b.network.TimeToSlot(ref)
}

// ChangeAddress returns the earliest unused internal address.
func (b *Builder) ChangeAddress() (ChangeAddress, error) {
	addr, _, ok := b.internal.FirstUnused()
	if ok && b.inUse != nil && b.inUse(addr) {
		if s, can := b.internal.(skippingSource); can {
			addr, _, ok = s.FirstUnusedExcept(b.inUse)
		}
	}
	if !ok {
		return ChangeAddress{}, errs.ErrNoChangeAddress
	}
	a, ok := b.internal.Addressing(addr)
	if !ok {
		return ChangeAddress{}, fmt.Errorf("%w: %s has no addressing", errs.ErrNoChangeAddress, addr)
	}
	return ChangeAddress{Address: addr, Addressing: a}, nil
}

// AddressUtxos resolves every UTXO to its derivation path. A UTXO whose
// address neither chain owns fails the whole call.
func (b *Builder) AddressUtxos(utxos []types.Utxo) ([]AddressedUtxo, error) {
	out := make([]AddressedUtxo, 0, len(utxos))
	for _, u := range utxos {
		a, ok := b.internal.Addressing(u.Receiver)
		if !ok {
			a, ok = b.external.Addressing(u.Receiver)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s at %s", errs.ErrUnrecognizedUtxo, u.ID(), u.Receiver)
		}
		out = append(out, AddressedUtxo{Utxo: u, Addressing: a})
	}
	return out, nil
}

// UnsignedParams describe a transaction before input selection.
type UnsignedParams struct {
	Utxos   []types.Utxo
	Outputs []tx.Output
	// SendAll spends every UTXO, paying all of it less fee to the only output.
	SendAll      bool
	Certificates []tx.Certificate
	Withdrawals  []tx.Withdrawal
	Metadata     tx.Metadata
	// NeededStakingKeyHashes are staking credentials that must witness.
	NeededStakingKeyHashes []types.KeyHash
	// Slot is the absolute slot the transaction is built at.
	Slot uint64
}

// NewUnsigned balances a transaction: it picks the change address,
// resolves inputs, selects coins for outputs, deposits and fee, and
// attaches metadata.
func (b *Builder) NewUnsigned(p UnsignedParams) (*Unsigned, error) {
	change, err := b.ChangeAddress()
	if err != nil {
		return nil, err
	}
	changeAddr, err := types.ParseAddress(change.Address)
	if err != nil {
		return nil, errs.Wrap(err, "parse change address")
	}
	addressed, err := b.AddressUtxos(p.Utxos)
	if err != nil {
		return nil, err
	}

	var deposit, refund uint64
	for _, c := range p.Certificates {
		switch c.Kind {
		case tx.CertStakeRegistration:
			deposit += b.network.KeyDeposit
		case tx.CertStakeDeregistration:
			refund += b.network.KeyDeposit
		}
	}

	aux, err := p.Metadata.Encode()
	if err != nil {
		return nil, errs.Wrap(err, "encode metadata")
	}

	pl := &plan{
		network:      b.network,
		outputs:      cloneOutputs(p.Outputs),
		sendAll:      p.SendAll,
		certificates: p.Certificates,
		withdrawals:  p.Withdrawals,
		deposit:      deposit,
		refund:       refund,
		ttl:          p.Slot + b.network.TTLOffset,
		aux:          aux,
		stakingWits:  len(p.NeededStakingKeyHashes),
		change:       changeAddr,
	}
	sel, err := pl.SelectCoins(addressed)
	if err != nil {
		return nil, err
	}

	body := sel.Body
	if err := body.Validate(); err != nil {
		return nil, errs.Wrap(err, "validate body")
	}
	unsigned := &tx.Transaction{Body: body, Valid: true, AuxData: aux}
	if len(aux) == 0 {
		unsigned.AuxData = nil
	}

	u := &Unsigned{
		tx:                     unsigned,
		Inputs:                 sel.Inputs,
		Metadata:               p.Metadata,
		NeededStakingKeyHashes: append([]types.KeyHash(nil), p.NeededStakingKeyHashes...),
		Network: NetworkInfo{
			ID:              b.network.ID,
			ChainNetworkTag: b.network.ChainNetworkTag,
			KeyDeposit:      b.network.KeyDeposit,
			PoolDeposit:     b.network.PoolDeposit,
		},
		Deposit: deposit,
		Refund:  refund,
	}
	if sel.HasChange {
		u.Change = []ChangeAddress{change}
	}
	b.logger.Debug().
		Int("inputs", len(sel.Inputs)).
		Int("outputs", len(body.Outputs)).
		Uint64("fee", sel.Fee).
		Bool("change", sel.HasChange).
		Msg("Built unsigned transaction")
	return u, nil
}

// SendToken is one amount to send. An empty Asset, or the caller's default
// token id, means the primary coin. SendAll sends the wallet's entire
// balance of the asset.
type SendToken struct {
	Asset   types.AssetID
	Amount  uint64
	SendAll bool
}

// BuildUnsigned builds a payment of tokens to receiver. refTime may be zero
// to use the current time. metadata may be nil.
func (b *Builder) BuildUnsigned(
	utxos []types.Utxo,
	receiver string,
	tokens []SendToken,
	defaultToken types.AssetID,
	refTime time.Time,
	metadata []tx.MetadataEntry,
) (*PaymentRequest, error) {
	slot, err := b.ResolveSlot(refTime)
	if err != nil {
		return nil, errs.Wrap(err, "resolve slot")
	}
	to, err := types.ParseAddress(receiver)
	if err != nil {
		return nil, errs.Wrap(err, "parse receiver")
	}
	if to.NetworkTag() != b.network.ChainNetworkTag {
		return nil, fmt.Errorf("%w: %s", ErrNetworkMismatch, receiver)
	}

	amount, sendAll, err := b.sendAmount(utxos, tokens, defaultToken)
	if err != nil {
		return nil, err
	}

	var meta tx.Metadata
	if len(metadata) > 0 {
		if meta, err = tx.MetadataFromJSON(metadata); err != nil {
			return nil, errs.Wrap(err, "parse metadata")
		}
	}

	u, err := b.NewUnsigned(UnsignedParams{
		Utxos:    utxos,
		Outputs:  []tx.Output{{Address: to, Amount: amount}},
		SendAll:  sendAll,
		Metadata: meta,
		Slot:     slot.AbsoluteSlot,
	})
	if err != nil {
		return nil, err
	}
	if sendAll {
		amount = u.tx.Body.Outputs[0].Amount.Clone()
	}
	return &PaymentRequest{Unsigned: u, Receiver: receiver, Amount: amount, SendAll: sendAll}, nil
}

func (b *Builder) sendAmount(utxos []types.Utxo, tokens []SendToken, defaultToken types.AssetID) (types.Value, bool, error) {
	var amount types.Value
	sendAll := false
	for _, t := range tokens {
		primary := t.Asset == "" || t.Asset == defaultToken
		switch {
		case primary && t.SendAll:
			sendAll = true
		case primary:
			amount.Coin += t.Amount
		case t.SendAll:
			var held uint64
			for _, u := range utxos {
				held += u.Amount.Assets[t.Asset]
			}
			amount = amount.Add(types.Value{Assets: map[types.AssetID]uint64{t.Asset: held}})
		default:
			amount = amount.Add(types.Value{Assets: map[types.AssetID]uint64{t.Asset: t.Amount}})
		}
	}
	if sendAll {
		return types.Value{}, true, nil
	}
	if amount.IsZero() {
		return types.Value{}, false, ErrNoOutputs
	}

	min := b.network.MinUTXO(len(amount.AssetIDs()))
	switch {
	case amount.HasAssets() && amount.Coin < min:
		amount.Coin = min
	case amount.Coin < min:
		return types.Value{}, false, fmt.Errorf("%w: %d < %d", ErrBelowMinUTXO, amount.Coin, min)
	}
	return amount, false, nil
}
