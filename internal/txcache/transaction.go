// Package txcache records the transactions a wallet has seen.
//
// The cache holds per-address history and per-reward-address certificates.
// All of it is derived from backend data: ResetState clears it without
// touching chains or keys, and the next sync rebuilds it.
package txcache

import (
	"time"

	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// Status is the confirmation state of a transaction.
type Status string

// Transaction states.
const (
	StatusSuccessful Status = "Successful"
	StatusPending    Status = "Pending"
	StatusFailed     Status = "Failed"
)

// CertificateKind names a staking certificate.
type CertificateKind string

// Certificate kinds.
const (
	CertStakeRegistration   CertificateKind = "StakeRegistration"
	CertStakeDeregistration CertificateKind = "StakeDeregistration"
	CertStakeDelegation     CertificateKind = "StakeDelegation"
)

// Certificate is a staking certificate carried by a transaction.
type Certificate struct {
	Kind CertificateKind `json:"kind"`
	// RewardAddress is the hex form of the certificate's reward address.
	RewardAddress string `json:"rewardAddress"`
	// PoolKeyHash is set for delegations.
	PoolKeyHash string `json:"poolKeyHash,omitempty"`
	CertIndex   int    `json:"certIndex"`
}

// Input is a spent output.
type Input struct {
	Address string      `json:"address"`
	Amount  types.Value `json:"amount"`
	TxHash  types.Hash  `json:"txHash"`
	Index   uint32      `json:"index"`
}

// Outpoint returns the output the input spends.
func (in Input) Outpoint() types.Outpoint {
	return types.Outpoint{TxHash: in.TxHash, TxIndex: in.Index}
}

// Output is a created output.
type Output struct {
	Address string      `json:"address"`
	Amount  types.Value `json:"amount"`
}

// Withdrawal moves rewards out of a reward address.
type Withdrawal struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// Transaction is one cached transaction.
type Transaction struct {
	ID     types.Hash `json:"id"`
	Status Status     `json:"status"`

	Inputs       []Input       `json:"inputs"`
	Outputs      []Output      `json:"outputs"`
	Fee          uint64        `json:"fee"`
	Certificates []Certificate `json:"certificates,omitempty"`
	Withdrawals  []Withdrawal  `json:"withdrawals,omitempty"`

	// BlockNum and TxOrdinal are zero until the transaction is in a block.
	BlockNum  uint64 `json:"blockNum,omitempty"`
	TxOrdinal int    `json:"txOrdinal,omitempty"`
	BlockHash string `json:"blockHash,omitempty"`

	// TTL is the last slot a locally submitted transaction may be included
	// in. Zero for records that came from the backend.
	TTL uint64 `json:"ttl,omitempty"`

	SubmittedAt   time.Time `json:"submittedAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// Confirmed reports whether the transaction is in a block.
func (t *Transaction) Confirmed() bool {
	return t.Status == StatusSuccessful && t.BlockNum > 0
}

// Addresses returns every address the transaction touches, inputs first.
func (t *Transaction) Addresses() []string {
	seen := make(map[string]bool, len(t.Inputs)+len(t.Outputs))
	var out []string
	add := func(a string) {
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	for _, in := range t.Inputs {
		add(in.Address)
	}
	for _, o := range t.Outputs {
		add(o.Address)
	}
	for _, w := range t.Withdrawals {
		add(w.Address)
	}
	return out
}

func (t *Transaction) clone() *Transaction {
	c := *t
	c.Inputs = append([]Input(nil), t.Inputs...)
	c.Outputs = append([]Output(nil), t.Outputs...)
	c.Certificates = append([]Certificate(nil), t.Certificates...)
	c.Withdrawals = append([]Withdrawal(nil), t.Withdrawals...)
	for i := range c.Inputs {
		c.Inputs[i].Amount = c.Inputs[i].Amount.Clone()
	}
	for i := range c.Outputs {
		c.Outputs[i].Amount = c.Outputs[i].Amount.Clone()
	}
	return &c
}

// before orders transactions by chain position. Unconfirmed transactions
// sort after confirmed ones, by submission time.
func before(a, b *Transaction) bool {
	ac, bc := a.Confirmed(), b.Confirmed()
	switch {
	case ac && !bc:
		return true
	case !ac && bc:
		return false
	case ac && bc:
		if a.BlockNum != b.BlockNum {
			return a.BlockNum < b.BlockNum
		}
		if a.TxOrdinal != b.TxOrdinal {
			return a.TxOrdinal < b.TxOrdinal
		}
	default:
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
	}
	return a.ID.String() < b.ID.String()
}
