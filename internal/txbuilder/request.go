package txbuilder

import (
	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// AddressedUtxo is a UTXO resolved to the derivation path of its address.
type AddressedUtxo struct {
	types.Utxo
	Addressing keys.Addressing
}

// ChangeAddress is a change output's address and derivation path.
type ChangeAddress struct {
	Address    string
	Addressing keys.Addressing
}

// NetworkInfo is the network context a request was built for.
type NetworkInfo struct {
	ID              config.NetworkID
	ChainNetworkTag byte
	KeyDeposit      uint64
	PoolDeposit     uint64
}

// Unsigned is a balanced, unsigned transaction with everything a signer
// needs. The builder does not touch it after construction and the body is
// only handed out as a copy. Inputs, Change and NeededStakingKeyHashes are
// plain slices: callers must not alter them between building and signing.
type Unsigned struct {
	tx *tx.Transaction

	// Inputs are the spent UTXOs in body order.
	Inputs []AddressedUtxo
	// Change holds the change output's address, if the body has one.
	Change []ChangeAddress
	// Metadata is the auxiliary data the body commits to, if any.
	Metadata tx.Metadata
	// NeededStakingKeyHashes lists staking credentials that must witness
	// the transaction besides the input keys.
	NeededStakingKeyHashes []types.KeyHash
	Network                NetworkInfo

	Deposit uint64
	Refund  uint64
}

// Tx returns a copy of the unsigned transaction.
func (u *Unsigned) Tx() *tx.Transaction {
	return tx.Assemble(u.tx, tx.WitnessSet{})
}

// Body returns a copy of the transaction body.
func (u *Unsigned) Body() tx.Body {
	return u.Tx().Body
}

// ID returns the hash of the body, the id the signed transaction will have.
func (u *Unsigned) ID() (types.Hash, error) {
	return u.tx.ID()
}

// Fee returns the body's fee.
func (u *Unsigned) Fee() uint64 {
	return u.tx.Body.Fee
}

// TotalInput returns the value of all spent UTXOs.
func (u *Unsigned) TotalInput() types.Value {
	var total types.Value
	for _, in := range u.Inputs {
		total = total.Add(in.Amount)
	}
	return total
}

// Base returns the request's unsigned transaction.
func (u *Unsigned) Base() *Unsigned { return u }

// SignRequest is one of PaymentRequest, DelegationRequest,
// WithdrawalRequest or VotingRegistrationRequest.
type SignRequest interface {
	Base() *Unsigned
	isSignRequest()
}

// PaymentRequest sends value to a receiver.
type PaymentRequest struct {
	*Unsigned
	Receiver string
	Amount   types.Value
	SendAll  bool
}

// DelegationRequest registers the staking key if needed and delegates it.
type DelegationRequest struct {
	*Unsigned
	PoolKeyHash           types.KeyHash
	Registering           bool
	TotalAmountToDelegate uint64
}

// WithdrawalRequest withdraws rewards, optionally deregistering the key.
type WithdrawalRequest struct {
	*Unsigned
	Withdrawn     uint64
	Deregistering bool
}

// VotingRegistrationRequest carries a signed voter registration.
type VotingRegistrationRequest struct {
	*Unsigned
	VotingPublicKey []byte
	Nonce           uint64
}

func (*PaymentRequest) isSignRequest()            {}
func (*DelegationRequest) isSignRequest()         {}
func (*WithdrawalRequest) isSignRequest()         {}
func (*VotingRegistrationRequest) isSignRequest() {}
