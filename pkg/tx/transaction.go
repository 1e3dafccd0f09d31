// Package tx defines the transaction model and its CBOR encoding.
package tx

import (
	"fmt"
	"math"

	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/fxamacker/cbor/v2"
)

// Input references an output being spent.
type Input struct {
	_      struct{} `cbor:",toarray"`
	TxHash types.Hash
	Index  uint32
}

// Outpoint returns the referenced output.
func (in Input) Outpoint() types.Outpoint {
	return types.Outpoint{TxHash: in.TxHash, TxIndex: in.Index}
}

// Output creates a new spendable output.
type Output struct {
	_       struct{} `cbor:",toarray"`
	Address types.Address
	Amount  types.Value
}

// CertificateKind is the on-chain tag of a staking certificate.
type CertificateKind uint8

// Certificate kinds.
const (
	CertStakeRegistration   CertificateKind = 0
	CertStakeDeregistration CertificateKind = 1
	CertStakeDelegation     CertificateKind = 2
)

func (k CertificateKind) String() string {
	switch k {
	case CertStakeRegistration:
		return "StakeRegistration"
	case CertStakeDeregistration:
		return "StakeDeregistration"
	case CertStakeDelegation:
		return "StakeDelegation"
	default:
		return fmt.Sprintf("CertificateKind(%d)", uint8(k))
	}
}

// Certificate is a staking certificate. PoolKeyHash is only meaningful
// for delegations.
type Certificate struct {
	_            struct{} `cbor:",toarray"`
	Kind         CertificateKind
	StakeKeyHash types.KeyHash
	PoolKeyHash  types.KeyHash
}

// Withdrawal moves rewards out of a reward address.
type Withdrawal struct {
	_             struct{} `cbor:",toarray"`
	RewardAddress types.Address
	Amount        uint64
}

// Body is the signed part of a transaction.
type Body struct {
	Inputs       []Input       `cbor:"0,keyasint"`
	Outputs      []Output      `cbor:"1,keyasint"`
	Fee          uint64        `cbor:"2,keyasint"`
	TTL          uint64        `cbor:"3,keyasint,omitempty"`
	Certificates []Certificate `cbor:"4,keyasint,omitempty"`
	Withdrawals  []Withdrawal  `cbor:"5,keyasint,omitempty"`
	AuxDataHash  *types.Hash   `cbor:"7,keyasint,omitempty"`
}

// VKeyWitness is a signature by a payment or staking key.
type VKeyWitness struct {
	_         struct{} `cbor:",toarray"`
	PublicKey []byte
	Signature []byte
}

// BootstrapWitness is a signature by a legacy address key. The chain code
// lets verifiers rebuild the extended key the address commits to.
type BootstrapWitness struct {
	_         struct{} `cbor:",toarray"`
	PublicKey []byte
	Signature []byte
	ChainCode []byte
}

// WitnessSet holds every witness of a transaction.
type WitnessSet struct {
	VKeys     []VKeyWitness      `cbor:"0,keyasint,omitempty"`
	Bootstrap []BootstrapWitness `cbor:"2,keyasint,omitempty"`
}

// Len returns the number of witnesses.
func (w WitnessSet) Len() int {
	return len(w.VKeys) + len(w.Bootstrap)
}

// Transaction is a body with its witnesses and optional auxiliary data.
type Transaction struct {
	_         struct{} `cbor:",toarray"`
	Body      Body
	Witnesses WitnessSet
	Valid     bool
	AuxData   cbor.RawMessage
}

// HasAuxData reports whether auxiliary data is attached.
func (t *Transaction) HasAuxData() bool {
	return len(t.AuxData) > 0 && !(len(t.AuxData) == 1 && t.AuxData[0] == cborNull)
}

// Hash returns the transaction id: blake2b-256 of the encoded body.
// Witnesses are excluded so signers can sign the id.
func (b *Body) Hash() (types.Hash, error) {
	data, err := EncodeBody(b)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Blake2b256(data), nil
}

// ID returns the hash of the transaction's body.
func (t *Transaction) ID() (types.Hash, error) {
	return t.Body.Hash()
}

// TotalOutput returns the sum of all output values.
func (b *Body) TotalOutput() (types.Value, error) {
	var total types.Value
	for i, out := range b.Outputs {
		if total.Coin > math.MaxUint64-out.Amount.Coin {
			return types.Value{}, fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
		total = total.Add(out.Amount)
	}
	return total, nil
}

// TotalWithdrawal returns the sum of all withdrawals.
func (b *Body) TotalWithdrawal() uint64 {
	var total uint64
	for _, w := range b.Withdrawals {
		total += w.Amount
	}
	return total
}
