package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// Validation errors.
var (
	ErrNoInputs         = errors.New("transaction has no inputs")
	ErrDuplicateInput   = errors.New("duplicate input")
	ErrOutputOverflow   = errors.New("output values overflow")
	ErrZeroOutput       = errors.New("output value is zero")
	ErrInvalidAddress   = errors.New("invalid output address")
	ErrInvalidSig       = errors.New("invalid signature")
	ErrAuxDataMismatch  = errors.New("auxiliary data hash mismatch")
	ErrMissingPoolHash  = errors.New("delegation without pool")
	ErrDuplicateReward  = errors.New("duplicate withdrawal")
	ErrInvalidWitnesses = errors.New("malformed witness")
)

// Validate checks body structure. It does not look up spent outputs.
func (b *Body) Validate() error {
	if len(b.Inputs) == 0 {
		return ErrNoInputs
	}
	seen := make(map[types.Outpoint]bool, len(b.Inputs))
	for i, in := range b.Inputs {
		if seen[in.Outpoint()] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[in.Outpoint()] = true
	}
	for i, out := range b.Outputs {
		if out.Amount.Coin == 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
		if err := out.Address.Validate(); err != nil {
			return fmt.Errorf("output %d: %w: %v", i, ErrInvalidAddress, err)
		}
	}
	if _, err := b.TotalOutput(); err != nil {
		return err
	}
	for i, c := range b.Certificates {
		if c.Kind == CertStakeDelegation && c.PoolKeyHash.IsZero() {
			return fmt.Errorf("certificate %d: %w", i, ErrMissingPoolHash)
		}
	}
	rewards := make(map[string]bool, len(b.Withdrawals))
	for i, w := range b.Withdrawals {
		if rewards[w.RewardAddress.Hex()] {
			return fmt.Errorf("withdrawal %d: %w", i, ErrDuplicateReward)
		}
		rewards[w.RewardAddress.Hex()] = true
	}
	return nil
}

// Validate checks the body, the auxiliary data commitment and witness shapes.
func (t *Transaction) Validate() error {
	if err := t.Body.Validate(); err != nil {
		return err
	}
	switch {
	case t.HasAuxData() && t.Body.AuxDataHash == nil,
		!t.HasAuxData() && t.Body.AuxDataHash != nil:
		return ErrAuxDataMismatch
	case t.HasAuxData() && AuxDataHash(t.AuxData) != *t.Body.AuxDataHash:
		return ErrAuxDataMismatch
	}
	for i, w := range t.Witnesses.VKeys {
		if len(w.PublicKey) != crypto.PublicKeySize || len(w.Signature) != crypto.SignatureSize {
			return fmt.Errorf("vkey witness %d: %w", i, ErrInvalidWitnesses)
		}
	}
	for i, w := range t.Witnesses.Bootstrap {
		if len(w.PublicKey) != crypto.PublicKeySize || len(w.Signature) != crypto.SignatureSize || len(w.ChainCode) != chainCodeSize {
			return fmt.Errorf("bootstrap witness %d: %w", i, ErrInvalidWitnesses)
		}
	}
	return nil
}

// VerifyWitnesses checks every witness signature against the body hash.
func (t *Transaction) VerifyWitnesses() error {
	id, err := t.ID()
	if err != nil {
		return err
	}
	for i, w := range t.Witnesses.VKeys {
		if !crypto.VerifySignature(id[:], w.Signature, w.PublicKey) {
			return fmt.Errorf("vkey witness %d: %w", i, ErrInvalidSig)
		}
	}
	for i, w := range t.Witnesses.Bootstrap {
		if !crypto.VerifySignature(id[:], w.Signature, w.PublicKey) {
			return fmt.Errorf("bootstrap witness %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}

// WitnessKeyHashes returns the key hashes of every witness public key.
func (t *Transaction) WitnessKeyHashes() map[types.KeyHash]bool {
	out := make(map[types.KeyHash]bool, t.Witnesses.Len())
	for _, w := range t.Witnesses.VKeys {
		out[crypto.KeyHashFromPubKey(w.PublicKey)] = true
	}
	for _, w := range t.Witnesses.Bootstrap {
		out[crypto.KeyHashFromPubKey(w.PublicKey)] = true
	}
	return out
}
