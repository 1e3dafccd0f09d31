// Package delegation builds staking transactions: stake key registration,
// delegation to a pool, reward withdrawal and deregistration.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
	"github.com/Klingon-tech/klingwallet/internal/txcache"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/rs/zerolog"
)

// Withdrawal errors.
var (
	ErrNotRegistered     = errors.New("staking key is not registered")
	ErrNothingToWithdraw = errors.New("no rewards to withdraw")
)

// Status is the delegation state of a reward address.
type Status struct {
	Registered bool
	// PoolKeyHash is the pool of the latest delegation. Zero when the key
	// is not delegated.
	PoolKeyHash types.KeyHash
}

// Delegating reports whether the key is delegated to a pool.
func (s Status) Delegating() bool {
	return s.Registered && !s.PoolKeyHash.IsZero()
}

// StatusFromCertificates replays certificates in chain order.
// A deregistration clears both registration and delegation.
func StatusFromCertificates(certs []txcache.CertificateRecord) Status {
	var s Status
	for _, c := range certs {
		switch c.Kind {
		case txcache.CertStakeRegistration:
			s.Registered = true
		case txcache.CertStakeDeregistration:
			s = Status{}
		case txcache.CertStakeDelegation:
			pool, err := types.HexToKeyHash(c.PoolKeyHash)
			if err != nil {
				continue
			}
			s.PoolKeyHash = pool
		}
	}
	if !s.Registered {
		s.PoolKeyHash = types.KeyHash{}
	}
	return s
}

// AccountState is the backend's view of a reward address.
type AccountState struct {
	Registered bool
	// RemainingAmount is the withdrawable reward balance.
	RemainingAmount uint64
	PoolKeyHash     string
}

// AccountStateFunc fetches the state of one reward address. A nil state
// means the backend has never seen the address.
type AccountStateFunc func(ctx context.Context, rewardAddress string) (*AccountState, error)

// Engine builds staking transactions for one account.
type Engine struct {
	builder *txbuilder.Builder
	stake   types.KeyHash
	reward  types.Address
	fetch   AccountStateFunc
	logger  zerolog.Logger
}

// New creates an engine for the account whose staking key hashes to stake.
func New(builder *txbuilder.Builder, stake types.KeyHash, fetch AccountStateFunc) *Engine {
	return &Engine{
		builder: builder,
		stake:   stake,
		reward:  types.NewRewardAddress(builder.Network().ChainNetworkTag, stake),
		fetch:   fetch,
		logger:  log.WithComponent("delegation"),
	}
}

// RewardAddress returns the account's reward address.
func (e *Engine) RewardAddress() types.Address {
	return append(types.Address(nil), e.reward...)
}

// DelegationArgs describe a delegation.
type DelegationArgs struct {
	PoolKeyHash types.KeyHash
	Utxos       []types.Utxo
	// History is the reward address's certificate sequence, used to decide
	// whether the key must be registered first.
	History []txcache.CertificateRecord
	// ValueInAccount is the current reward balance.
	ValueInAccount uint64
	RefTime        time.Time
}

// CreateDelegationTx registers the staking key when it is not registered
// and delegates it to a pool.
func (e *Engine) CreateDelegationTx(ctx context.Context, args DelegationArgs) (*txbuilder.DelegationRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args.PoolKeyHash.IsZero() {
		return nil, fmt.Errorf("delegation needs a pool: %w", tx.ErrMissingPoolHash)
	}
	slot, err := e.builder.ResolveSlot(args.RefTime)
	if err != nil {
		return nil, errs.Wrap(err, "resolve slot")
	}

	status := StatusFromCertificates(args.History)
	var certs []tx.Certificate
	if !status.Registered {
		certs = append(certs, tx.Certificate{Kind: tx.CertStakeRegistration, StakeKeyHash: e.stake})
	}
	certs = append(certs, tx.Certificate{Kind: tx.CertStakeDelegation, StakeKeyHash: e.stake, PoolKeyHash: args.PoolKeyHash})

	u, err := e.builder.NewUnsigned(txbuilder.UnsignedParams{
		Utxos:                  args.Utxos,
		Certificates:           certs,
		NeededStakingKeyHashes: []types.KeyHash{e.stake},
		Slot:                   slot.AbsoluteSlot,
	})
	if err != nil {
		return nil, err
	}
	req := &txbuilder.DelegationRequest{
		Unsigned:              u,
		PoolKeyHash:           args.PoolKeyHash,
		Registering:           !status.Registered,
		TotalAmountToDelegate: TotalAmountToDelegate(args.Utxos, args.ValueInAccount, u.Fee(), u.Deposit),
	}
	e.logger.Debug().
		Str("pool", args.PoolKeyHash.String()).
		Bool("registering", req.Registering).
		Uint64("amount", req.TotalAmountToDelegate).
		Msg("Built delegation")
	return req, nil
}

// WithdrawalArgs describe a reward withdrawal.
type WithdrawalArgs struct {
	Utxos []types.Utxo
	// Deregister also deregisters the staking key, refunding its deposit.
	Deregister bool
	RefTime    time.Time
}

// CreateWithdrawalTx withdraws the full reward balance reported by the
// backend, optionally deregistering the key in the same transaction.
func (e *Engine) CreateWithdrawalTx(ctx context.Context, args WithdrawalArgs) (*txbuilder.WithdrawalRequest, error) {
	slot, err := e.builder.ResolveSlot(args.RefTime)
	if err != nil {
		return nil, errs.Wrap(err, "resolve slot")
	}
	state, err := e.fetch(ctx, e.reward.String())
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &AccountState{}
	}
	if args.Deregister && !state.Registered {
		return nil, ErrNotRegistered
	}
	if state.RemainingAmount == 0 && !args.Deregister {
		return nil, ErrNothingToWithdraw
	}

	var withdrawals []tx.Withdrawal
	if state.RemainingAmount > 0 {
		withdrawals = append(withdrawals, tx.Withdrawal{RewardAddress: e.RewardAddress(), Amount: state.RemainingAmount})
	}
	var certs []tx.Certificate
	if args.Deregister {
		certs = append(certs, tx.Certificate{Kind: tx.CertStakeDeregistration, StakeKeyHash: e.stake})
	}

	u, err := e.builder.NewUnsigned(txbuilder.UnsignedParams{
		Utxos:                  args.Utxos,
		Certificates:           certs,
		Withdrawals:            withdrawals,
		NeededStakingKeyHashes: []types.KeyHash{e.stake},
		Slot:                   slot.AbsoluteSlot,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug().
		Uint64("withdrawn", state.RemainingAmount).
		Bool("deregister", args.Deregister).
		Msg("Built withdrawal")
	return &txbuilder.WithdrawalRequest{
		Unsigned:      u,
		Withdrawn:     state.RemainingAmount,
		Deregistering: args.Deregister,
	}, nil
}

// TotalAmountToDelegate is the stake the account carries once the
// delegation settles: every UTXO plus rewards, less fee and deposit.
func TotalAmountToDelegate(utxos []types.Utxo, rewards, fee, deposit uint64) uint64 {
	total := rewards
	for _, u := range utxos {
		total += u.Amount.Coin
	}
	if spent := fee + deposit; spent < total {
		return total - spent
	}
	return 0
}
