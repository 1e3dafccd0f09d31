// Package signer turns sign requests into signed transactions, either with
// a decrypted local key or through a hardware device.
//
// Both signers return the same SignedTx shape. The transaction id is the
// body hash, so it does not depend on which signer produced the witnesses.
package signer

import (
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// SignedTx is a fully witnessed transaction ready for submission.
type SignedTx struct {
	// ID is the hex body hash.
	ID      string
	Encoded []byte
}

// Hex returns the encoded transaction in hex.
func (s *SignedTx) Hex() string {
	return hex.EncodeToString(s.Encoded)
}

// Decode parses the encoded transaction.
func (s *SignedTx) Decode() (*tx.Transaction, error) {
	return tx.Decode(s.Encoded)
}

// base unwraps a request, rejecting variants this package does not know
// and requests without a transaction.
func base(req txbuilder.SignRequest) (*txbuilder.Unsigned, error) {
	switch r := req.(type) {
	case *txbuilder.PaymentRequest:
		if r == nil {
			break
		}
		return nonNil(r.Unsigned)
	case *txbuilder.DelegationRequest:
		if r == nil {
			break
		}
		return nonNil(r.Unsigned)
	case *txbuilder.WithdrawalRequest:
		if r == nil {
			break
		}
		return nonNil(r.Unsigned)
	case *txbuilder.VotingRegistrationRequest:
		if r == nil {
			break
		}
		return nonNil(r.Unsigned)
	}
	return nil, fmt.Errorf("%w: unsupported request %T", errs.ErrInvalidSignRequest, req)
}

func nonNil(u *txbuilder.Unsigned) (*txbuilder.Unsigned, error) {
	if u == nil {
		return nil, fmt.Errorf("%w: request has no transaction", errs.ErrInvalidSignRequest)
	}
	return u, nil
}

// requiredKeyHashes lists every credential that must witness u: the
// payment key of each input and each needed staking key.
func requiredKeyHashes(u *txbuilder.Unsigned) (map[types.KeyHash]bool, error) {
	out := make(map[types.KeyHash]bool, len(u.Inputs)+len(u.NeededStakingKeyHashes))
	for _, in := range u.Inputs {
		addr, err := types.ParseAddress(in.Receiver)
		if err != nil {
			return nil, fmt.Errorf("%w: input %s: %v", errs.ErrInvalidSignRequest, in.ID(), err)
		}
		h, ok := addr.PaymentKeyHash()
		if !ok {
			return nil, fmt.Errorf("%w: input %s has no payment key", errs.ErrInvalidSignRequest, in.ID())
		}
		out[h] = true
	}
	for _, h := range u.NeededStakingKeyHashes {
		out[h] = true
	}
	return out, nil
}

// finalize attaches witnesses to the unsigned transaction and checks that
// they verify and cover every required credential. Witness faults are
// reported as fault.
func finalize(u *txbuilder.Unsigned, ws tx.WitnessSet, fault error) (*SignedTx, error) {
	signed := tx.Assemble(u.Tx(), ws)
	if err := signed.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", fault, err)
	}
	if err := signed.VerifyWitnesses(); err != nil {
		return nil, fmt.Errorf("%w: %v", fault, err)
	}
	required, err := requiredKeyHashes(u)
	if err != nil {
		return nil, err
	}
	have := signed.WitnessKeyHashes()
	for h := range required {
		if !have[h] {
			return nil, fmt.Errorf("%w: missing witness for key %s", fault, h)
		}
	}

	encoded, err := tx.Encode(signed)
	if err != nil {
		return nil, errs.Wrap(err, "encode signed transaction")
	}
	id, err := signed.ID()
	if err != nil {
		return nil, errs.Wrap(err, "hash signed transaction")
	}
	return &SignedTx{ID: id.String(), Encoded: encoded}, nil
}
