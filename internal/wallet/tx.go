package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Klingon-tech/klingwallet/internal/delegation"
	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/hw"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/signer"
	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
	"github.com/Klingon-tech/klingwallet/internal/txcache"
	"github.com/Klingon-tech/klingwallet/internal/vault"
	"github.com/Klingon-tech/klingwallet/internal/voting"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// ErrNoMasterKey is returned for operations that need the master key on
// hardware and read-only wallets.
var ErrNoMasterKey = errors.New("wallet holds no master key")

// PaymentParams describe a payment.
type PaymentParams struct {
	Utxos    []types.Utxo
	Receiver string
	Tokens   []txbuilder.SendToken
	// DefaultToken is the asset id callers use for the primary coin.
	DefaultToken types.AssetID
	RefTime      time.Time
	Metadata     []tx.MetadataEntry
}

// CreateUnsignedTx builds a payment. It reads the chains but changes
// nothing.
func (w *Wallet) CreateUnsignedTx(p PaymentParams) (*txbuilder.PaymentRequest, error) {
	return w.builder.BuildUnsigned(p.Utxos, p.Receiver, p.Tokens, p.DefaultToken, p.RefTime, p.Metadata)
}

func (w *Wallet) stakingEngine() (*delegation.Engine, error) {
	if !w.impl.Era.SupportsStaking() {
		return nil, ErrStakingUnsupported
	}
	return delegation.New(w.builder, w.stake, w.fetchAccountState), nil
}

// fetchAccountState adapts the backend's account record. The backend
// keys reward addresses by their hex form.
func (w *Wallet) fetchAccountState(ctx context.Context, rewardAddress string) (*delegation.AccountState, error) {
	addr, err := types.ParseAddress(rewardAddress)
	if err != nil {
		return nil, errs.Wrap(err, "parse reward address")
	}
	st, err := w.engine.backend.AccountState(ctx, addr.Hex())
	if err != nil || st == nil {
		return nil, err
	}
	out := &delegation.AccountState{Registered: st.Registered, RemainingAmount: st.RemainingAmount}
	if st.PoolOperator != nil {
		out.PoolKeyHash = *st.PoolOperator
	}
	return out, nil
}

// DelegationParams describe a delegation.
type DelegationParams struct {
	PoolKeyHash types.KeyHash
	Utxos       []types.Utxo
	// ValueInAccount is the reward balance counted towards the delegated
	// amount.
	ValueInAccount uint64
	RefTime        time.Time
}

// CreateDelegationTx delegates the staking key, registering it first when
// the cached history shows no registration.
func (w *Wallet) CreateDelegationTx(ctx context.Context, p DelegationParams) (*txbuilder.DelegationRequest, error) {
	d, err := w.stakingEngine()
	if err != nil {
		return nil, err
	}
	return d.CreateDelegationTx(ctx, delegation.DelegationArgs{
		PoolKeyHash:    p.PoolKeyHash,
		Utxos:          p.Utxos,
		History:        w.cache.Certificates(w.reward.Hex()),
		ValueInAccount: p.ValueInAccount,
		RefTime:        p.RefTime,
	})
}

// WithdrawalParams describe a reward withdrawal.
type WithdrawalParams struct {
	Utxos      []types.Utxo
	Deregister bool
	RefTime    time.Time
}

// CreateWithdrawalTx withdraws all rewards, optionally deregistering the
// staking key.
func (w *Wallet) CreateWithdrawalTx(ctx context.Context, p WithdrawalParams) (*txbuilder.WithdrawalRequest, error) {
	d, err := w.stakingEngine()
	if err != nil {
		return nil, err
	}
	return d.CreateWithdrawalTx(ctx, delegation.WithdrawalArgs{
		Utxos:      p.Utxos,
		Deregister: p.Deregister,
		RefTime:    p.RefTime,
	})
}

// VotingParams describe a voter registration. The password unlocks the
// staking key that signs the registration.
type VotingParams struct {
	Utxos           []types.Utxo
	VotingPublicKey []byte
	Password        []byte
	RefTime         time.Time
}

// CreateVotingRegTx builds a voter registration. Hardware wallets cannot
// register.
func (w *Wallet) CreateVotingRegTx(ctx context.Context, p VotingParams) (*txbuilder.VotingRegistrationRequest, error) {
	if !w.impl.Era.SupportsStaking() {
		return nil, ErrStakingUnsupported
	}
	if w.IsHW() {
		return nil, fmt.Errorf("%w: hardware wallets cannot sign voter registrations", errs.ErrInvalidSignRequest)
	}
	_, account, err := w.unlock(p.Password)
	if err != nil {
		return nil, err
	}
	stake, err := keys.StakingKey(account, w.impl.Era)
	if err != nil {
		return nil, errs.Wrap(err, "derive staking key")
	}
	staking, err := stake.Signer()
	if err != nil {
		return nil, errs.Wrap(err, "staking key")
	}
	return voting.New(w.builder).CreateVotingRegTx(ctx, voting.Args{
		Utxos:           p.Utxos,
		VotingPublicKey: p.VotingPublicKey,
		StakingKey:      staking,
		RewardAddress:   w.RewardAddress(),
		RefTime:         p.RefTime,
	})
}

// unlock unseals the master key and checks that it derives this wallet's
// account. A wrong password fails with errs.ErrWrongPassword.
func (w *Wallet) unlock(password []byte) (master, account *keys.HDKey, err error) {
	if w.IsHW() || w.readOnly {
		return nil, nil, ErrNoMasterKey
	}
	secret, err := w.engine.vault.Decrypt(w.ID(), vault.PurposeMasterKey, password)
	if err != nil {
		return nil, nil, err
	}
	defer zero(secret)
	if master, err = keys.MasterKeyFromBytes(secret); err != nil {
		return nil, nil, errs.InvalidState("stored master key: %v", err)
	}
	if account, err = keys.DeriveAccountKey(master, w.impl.Era); err != nil {
		return nil, nil, errs.Wrap(err, "derive account key")
	}
	if !strings.EqualFold(account.Neuter().Hex(), w.pubHex) {
		return nil, nil, errs.InvalidState("stored master key belongs to another account")
	}
	return master, account, nil
}

// SignTx signs req with the master key sealed under password.
func (w *Wallet) SignTx(req txbuilder.SignRequest, password []byte) (*signer.SignedTx, error) {
	if w.IsHW() || w.readOnly {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidSignRequest, ErrNoMasterKey)
	}
	master, _, err := w.unlock(password)
	if err != nil {
		return nil, err
	}
	local, err := signer.NewLocal(master, w.impl.Era)
	if err != nil {
		return nil, err
	}
	signed, err := local.WithLogger(w.logger).Sign(req)
	if err != nil {
		return nil, err
	}
	w.logger.Info().Str("tx", signed.ID).Msg("Transaction signed")
	return signed, nil
}

// SignTxWithDevice asks the paired device to sign req. Cancelling ctx
// while the device waits for confirmation fails with
// errs.ErrHardwareRejected.
func (w *Wallet) SignTxWithDevice(ctx context.Context, req txbuilder.SignRequest, device hw.Device) (*signer.SignedTx, error) {
	if !w.IsHW() {
		return nil, fmt.Errorf("%w: wallet is not paired with a device", errs.ErrInvalidSignRequest)
	}
	h, err := signer.NewHardware(device, *w.hwInfo, w.pubHex, w.impl.Era, hw.Network{
		Tag:           w.network.ChainNetworkTag,
		ProtocolMagic: w.network.ProtocolMagic,
	})
	if err != nil {
		return nil, err
	}
	signed, err := h.WithLogger(w.logger).Sign(ctx, req)
	if err != nil {
		return nil, err
	}
	w.logger.Info().Str("tx", signed.ID).Str("device", w.hwInfo.DeviceID).Msg("Transaction signed on device")
	return signed, nil
}

// ChangePassword reseals the master key under a new password.
func (w *Wallet) ChangePassword(oldPassword, newPassword []byte) error {
	if w.IsHW() || w.readOnly {
		return ErrNoMasterKey
	}
	if len(newPassword) == 0 {
		return ErrEmptyPassword
	}
	return w.engine.vault.ChangePassword(w.ID(), oldPassword, newPassword)
}

// Submit sends a signed transaction to the backend. Once accepted it is
// cached as pending: its inputs are no longer offered as spendable and its
// outputs are not offered until a sync confirms them. If the chain passes
// the body's TTL first, Sync drops the record and the inputs return.
func (w *Wallet) Submit(ctx context.Context, signed *signer.SignedTx) error {
	decoded, err := signed.Decode()
	if err != nil {
		return errs.Wrap(err, "decode signed transaction")
	}
	id, err := decoded.ID()
	if err != nil {
		return errs.Wrap(err, "hash signed transaction")
	}
	if !strings.EqualFold(id.String(), signed.ID) {
		return fmt.Errorf("%w: id %s does not match body hash %s", errs.ErrInvalidSignRequest, signed.ID, id)
	}
	if err := w.engine.backend.SubmitTransaction(ctx, signed.Encoded); err != nil {
		return err
	}
	if err := w.cache.AddPending(w.pendingRecord(id, &decoded.Body)); err != nil {
		return errs.Wrap(err, "record pending transaction")
	}
	w.logger.Info().Str("tx", signed.ID).Msg("Transaction submitted")
	return nil
}

// pendingRecord describes a submitted body in cache form. Inputs carry
// address and amount when they spend a known output. Certificates are
// left out until the transaction is confirmed.
func (w *Wallet) pendingRecord(id types.Hash, body *tx.Body) txcache.Transaction {
	known := make(map[types.Outpoint]types.Utxo)
	for _, u := range w.Utxos() {
		known[u.Outpoint] = u
	}
	rec := txcache.Transaction{
		ID:            id,
		Status:        txcache.StatusPending,
		Fee:           body.Fee,
		TTL:           body.TTL,
		SubmittedAt:   w.engine.now(),
		LastUpdatedAt: w.engine.now(),
	}
	for _, in := range body.Inputs {
		ci := txcache.Input{TxHash: in.TxHash, Index: in.Index}
		if u, ok := known[in.Outpoint()]; ok {
			ci.Address = u.Receiver
			ci.Amount = u.Amount.Clone()
		}
		rec.Inputs = append(rec.Inputs, ci)
	}
	for _, o := range body.Outputs {
		rec.Outputs = append(rec.Outputs, txcache.Output{Address: o.Address.String(), Amount: o.Amount.Clone()})
	}
	for _, wd := range body.Withdrawals {
		rec.Withdrawals = append(rec.Withdrawals, txcache.Withdrawal{Address: wd.RewardAddress.Hex(), Amount: wd.Amount})
	}
	return rec
}
