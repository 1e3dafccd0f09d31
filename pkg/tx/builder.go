package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// Builder constructs transaction bodies incrementally.
type Builder struct {
	body Body
	aux  []byte
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{body: Body{Inputs: []Input{}, Outputs: []Output{}}}
}

// AddInput adds an input spending prevOut.
func (b *Builder) AddInput(prevOut types.Outpoint) *Builder {
	b.body.Inputs = append(b.body.Inputs, Input{TxHash: prevOut.TxHash, Index: prevOut.TxIndex})
	return b
}

// AddOutput adds an output paying amount to addr.
func (b *Builder) AddOutput(addr types.Address, amount types.Value) *Builder {
	b.body.Outputs = append(b.body.Outputs, Output{Address: addr, Amount: amount.Clone()})
	return b
}

// AddCertificate appends a staking certificate.
func (b *Builder) AddCertificate(c Certificate) *Builder {
	b.body.Certificates = append(b.body.Certificates, c)
	return b
}

// AddWithdrawal withdraws amount from a reward address.
func (b *Builder) AddWithdrawal(reward types.Address, amount uint64) *Builder {
	b.body.Withdrawals = append(b.body.Withdrawals, Withdrawal{RewardAddress: reward, Amount: amount})
	return b
}

// SetFee sets the fee.
func (b *Builder) SetFee(fee uint64) *Builder {
	b.body.Fee = fee
	return b
}

// SetTTL sets the last slot the transaction is valid in.
func (b *Builder) SetTTL(slot uint64) *Builder {
	b.body.TTL = slot
	return b
}

// SetAuxData attaches encoded auxiliary data and commits to its hash.
func (b *Builder) SetAuxData(aux []byte) *Builder {
	if len(aux) == 0 {
		b.aux = nil
		b.body.AuxDataHash = nil
		return b
	}
	b.aux = append([]byte(nil), aux...)
	h := AuxDataHash(b.aux)
	b.body.AuxDataHash = &h
	return b
}

// Body returns a copy of the body built so far.
func (b *Builder) Body() Body {
	return b.body.clone()
}

// AuxData returns the attached auxiliary data.
func (b *Builder) AuxData() []byte {
	return append([]byte(nil), b.aux...)
}

// Build returns an unsigned transaction.
// Does NOT validate: call Validate separately.
func (b *Builder) Build() *Transaction {
	return &Transaction{Body: b.body.clone(), Valid: true, AuxData: b.AuxData()}
}

func (b Body) clone() Body {
	c := b
	c.Inputs = append([]Input{}, b.Inputs...)
	c.Outputs = make([]Output, len(b.Outputs))
	for i, o := range b.Outputs {
		c.Outputs[i] = Output{Address: append(types.Address(nil), o.Address...), Amount: o.Amount.Clone()}
	}
	c.Certificates = append([]Certificate(nil), b.Certificates...)
	c.Withdrawals = append([]Withdrawal(nil), b.Withdrawals...)
	if b.AuxDataHash != nil {
		h := *b.AuxDataHash
		c.AuxDataHash = &h
	}
	return c
}

// Assemble attaches witnesses to a copy of an unsigned transaction.
func Assemble(unsigned *Transaction, w WitnessSet) *Transaction {
	t := &Transaction{
		Body:    unsigned.Body.clone(),
		Valid:   true,
		AuxData: append([]byte(nil), unsigned.AuxData...),
	}
	t.Witnesses.VKeys = append([]VKeyWitness(nil), w.VKeys...)
	t.Witnesses.Bootstrap = append([]BootstrapWitness(nil), w.Bootstrap...)
	if len(t.AuxData) == 0 {
		t.AuxData = nil
	}
	return t
}

// SignVKey signs the body hash with key.
func SignVKey(id types.Hash, key crypto.Signer) (VKeyWitness, error) {
	sig, err := key.Sign(id[:])
	if err != nil {
		return VKeyWitness{}, fmt.Errorf("sign body: %w", err)
	}
	return VKeyWitness{PublicKey: key.PublicKey(), Signature: sig}, nil
}

// SignBootstrap signs the body hash with a legacy address key.
func SignBootstrap(id types.Hash, key crypto.Signer, chainCode []byte) (BootstrapWitness, error) {
	sig, err := key.Sign(id[:])
	if err != nil {
		return BootstrapWitness{}, fmt.Errorf("sign body: %w", err)
	}
	return BootstrapWitness{
		PublicKey: key.PublicKey(),
		Signature: sig,
		ChainCode: append([]byte(nil), chainCode...),
	}, nil
}
