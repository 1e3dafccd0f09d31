// Package voting builds voter registration transactions.
//
// A registration is auxiliary data under two labels. RegistrationLabel maps
// 1 to the voting key, 2 to the staking public key, 3 to the reward address
// and 4 to a nonce (the slot it was built at). SignatureLabel maps 1 to the
// staking key's signature over the blake2b-256 hash of the encoded
// {RegistrationLabel: registration} map.
package voting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
)

// Metadata labels.
const (
	RegistrationLabel uint64 = 61284
	SignatureLabel    uint64 = 61285
)

// Registration map keys.
const (
	keyVotingKey  uint64 = 1
	keyStakingKey uint64 = 2
	keyReward     uint64 = 3
	keyNonce      uint64 = 4
	keySignature  uint64 = 1
)

// ErrInvalidRegistration is returned for registration data that does not
// verify.
var ErrInvalidRegistration = errors.New("invalid voter registration")

// Registration is a decoded voter registration.
type Registration struct {
	VotingKey     []byte
	StakingKey    []byte
	RewardAddress types.Address
	Nonce         uint64
	Signature     []byte
}

// RegistrationMetadata builds and signs registration metadata.
func RegistrationMetadata(votingKey []byte, staking crypto.Signer, reward types.Address, nonce uint64) (tx.Metadata, error) {
	if err := crypto.ValidatePublicKey(votingKey); err != nil {
		return nil, fmt.Errorf("%w: voting key: %v", ErrInvalidRegistration, err)
	}
	if reward.Kind() != types.KindReward {
		return nil, fmt.Errorf("%w: %s is not a reward address", ErrInvalidRegistration, reward)
	}
	reg := map[uint64]interface{}{
		keyVotingKey:  append([]byte(nil), votingKey...),
		keyStakingKey: staking.PublicKey(),
		keyReward:     []byte(reward),
		keyNonce:      nonce,
	}
	encoded, err := tx.Marshal(reg)
	if err != nil {
		return nil, errs.Wrap(err, "encode registration")
	}
	digest, err := signedDigest(encoded)
	if err != nil {
		return nil, err
	}
	sig, err := staking.Sign(digest[:])
	if err != nil {
		return nil, errs.Wrap(err, "sign registration")
	}
	return tx.Metadata{
		RegistrationLabel: reg,
		SignatureLabel:    map[uint64]interface{}{keySignature: sig},
	}, nil
}

// signedDigest hashes {RegistrationLabel: reg} where reg is already encoded.
func signedDigest(reg []byte) (types.Hash, error) {
	data, err := tx.Marshal(map[uint64]cbor.RawMessage{RegistrationLabel: reg})
	if err != nil {
		return types.Hash{}, errs.Wrap(err, "encode registration digest")
	}
	return crypto.Blake2b256(data), nil
}

// ParseRegistration decodes registration auxiliary data and verifies its
// signature.
func ParseRegistration(aux []byte) (*Registration, error) {
	var raw struct {
		Reg cbor.RawMessage   `cbor:"61284,keyasint"`
		Sig map[uint64][]byte `cbor:"61285,keyasint"`
	}
	if err := tx.Unmarshal(aux, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}
	if len(raw.Reg) == 0 {
		return nil, fmt.Errorf("%w: missing label %d", ErrInvalidRegistration, RegistrationLabel)
	}
	var fields struct {
		VotingKey  []byte `cbor:"1,keyasint"`
		StakingKey []byte `cbor:"2,keyasint"`
		Reward     []byte `cbor:"3,keyasint"`
		Nonce      uint64 `cbor:"4,keyasint"`
	}
	if err := tx.Unmarshal(raw.Reg, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}
	r := &Registration{
		VotingKey:     fields.VotingKey,
		StakingKey:    fields.StakingKey,
		RewardAddress: types.Address(fields.Reward),
		Nonce:         fields.Nonce,
		Signature:     raw.Sig[keySignature],
	}

	digest, err := signedDigest(raw.Reg)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifySignature(digest[:], r.Signature, r.StakingKey) {
		return nil, fmt.Errorf("%w: bad signature", ErrInvalidRegistration)
	}
	stake, ok := r.RewardAddress.StakeKeyHash()
	if !ok || r.RewardAddress.Kind() != types.KindReward {
		return nil, fmt.Errorf("%w: bad reward address", ErrInvalidRegistration)
	}
	if stake != crypto.KeyHashFromPubKey(r.StakingKey) {
		return nil, fmt.Errorf("%w: reward address is not the staking key's", ErrInvalidRegistration)
	}
	return r, nil
}

// Engine builds registration transactions.
type Engine struct {
	builder *txbuilder.Builder
	logger  zerolog.Logger
}

// New creates an engine that balances registrations with builder.
func New(builder *txbuilder.Builder) *Engine {
	return &Engine{builder: builder, logger: log.WithComponent("voting")}
}

// Args describe a registration.
type Args struct {
	Utxos           []types.Utxo
	VotingPublicKey []byte
	// StakingKey signs the registration. Its reward address must be
	// RewardAddress.
	StakingKey    crypto.Signer
	RewardAddress types.Address
	RefTime       time.Time
}

// CreateVotingRegTx builds a transaction with no payment outputs whose
// only effect is the signed registration. Unexpected encoding faults are
// reported as *errs.CardanoError.
func (e *Engine) CreateVotingRegTx(ctx context.Context, args Args) (*txbuilder.VotingRegistrationRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args.StakingKey == nil {
		return nil, fmt.Errorf("%w: no staking key", ErrInvalidRegistration)
	}
	if stake, ok := args.RewardAddress.StakeKeyHash(); !ok || stake != crypto.KeyHashFromPubKey(args.StakingKey.PublicKey()) {
		return nil, fmt.Errorf("%w: reward address is not the staking key's", ErrInvalidRegistration)
	}
	slot, err := e.builder.ResolveSlot(args.RefTime)
	if err != nil {
		return nil, errs.Wrap(err, "resolve slot")
	}

	meta, err := RegistrationMetadata(args.VotingPublicKey, args.StakingKey, args.RewardAddress, slot.AbsoluteSlot)
	if err != nil {
		return nil, err
	}
	u, err := e.builder.NewUnsigned(txbuilder.UnsignedParams{
		Utxos:    args.Utxos,
		Metadata: meta,
		Slot:     slot.AbsoluteSlot,
	})
	if err != nil {
		return nil, errs.Wrap(err, "build voter registration")
	}
	e.logger.Debug().Uint64("nonce", slot.AbsoluteSlot).Msg("Built voter registration")
	return &txbuilder.VotingRegistrationRequest{
		Unsigned:        u,
		VotingPublicKey: append([]byte(nil), args.VotingPublicKey...),
		Nonce:           slot.AbsoluteSlot,
	}, nil
}
