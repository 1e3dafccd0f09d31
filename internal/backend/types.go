package backend

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingwallet/internal/txcache"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// Asset is a native asset quantity on the wire.
type Asset struct {
	PolicyID string `json:"policyId"`
	// Name is the hex asset name.
	Name   string `json:"name"`
	Amount uint64 `json:"amount,string"`
}

// RawUtxo is an unspent output as the backend reports it.
type RawUtxo struct {
	TxHash   string  `json:"tx_hash"`
	TxIndex  uint32  `json:"tx_index"`
	Receiver string  `json:"receiver"`
	Amount   uint64  `json:"amount,string"`
	Assets   []Asset `json:"assets,omitempty"`
}

func assetsValue(coin uint64, assets []Asset) (types.Value, error) {
	v := types.Coins(coin)
	for _, a := range assets {
		policy, err := types.HexToKeyHash(a.PolicyID)
		if err != nil {
			return types.Value{}, fmt.Errorf("asset policy: %w", err)
		}
		name, err := hex.DecodeString(a.Name)
		if err != nil {
			return types.Value{}, fmt.Errorf("asset name: %w", err)
		}
		if v.Assets == nil {
			v.Assets = make(map[types.AssetID]uint64)
		}
		v.Assets[types.NewAssetID(policy, name)] += a.Amount
	}
	return v, nil
}

// Utxo converts the wire form.
func (r RawUtxo) Utxo() (types.Utxo, error) {
	h, err := types.HexToHash(r.TxHash)
	if err != nil {
		return types.Utxo{}, fmt.Errorf("utxo tx hash: %w", err)
	}
	amount, err := assetsValue(r.Amount, r.Assets)
	if err != nil {
		return types.Utxo{}, fmt.Errorf("utxo %s:%d: %w", r.TxHash, r.TxIndex, err)
	}
	return types.Utxo{
		Outpoint: types.Outpoint{TxHash: h, TxIndex: r.TxIndex},
		Receiver: r.Receiver,
		Amount:   amount,
	}, nil
}

type rawInput struct {
	Address string  `json:"address"`
	Amount  uint64  `json:"amount,string"`
	Assets  []Asset `json:"assets,omitempty"`
	TxHash  string  `json:"txHash"`
	Index   uint32  `json:"index"`
}

type rawOutput struct {
	Address string  `json:"address"`
	Amount  uint64  `json:"amount,string"`
	Assets  []Asset `json:"assets,omitempty"`
}

type rawCertificate struct {
	Kind          txcache.CertificateKind `json:"kind"`
	RewardAddress string                  `json:"rewardAddress"`
	PoolKeyHash   string                  `json:"poolKeyHash,omitempty"`
	CertIndex     int                     `json:"certIndex"`
}

type rawWithdrawal struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount,string"`
}

// RawTx is a history entry as the backend reports it.
type RawTx struct {
	Hash         string           `json:"hash"`
	Status       txcache.Status   `json:"tx_state"`
	BlockNum     uint64           `json:"block_num,omitempty"`
	BlockHash    string           `json:"block_hash,omitempty"`
	TxOrdinal    int              `json:"tx_ordinal,omitempty"`
	Fee          uint64           `json:"fee,string"`
	Inputs       []rawInput       `json:"inputs"`
	Outputs      []rawOutput      `json:"outputs"`
	Certificates []rawCertificate `json:"certificates,omitempty"`
	Withdrawals  []rawWithdrawal  `json:"withdrawals,omitempty"`
	SubmittedAt  time.Time        `json:"submittedAt"`
	LastUpdate   time.Time        `json:"last_update"`
}

// Transaction converts the wire form into a cache record.
func (r RawTx) Transaction() (txcache.Transaction, error) {
	id, err := types.HexToHash(r.Hash)
	if err != nil {
		return txcache.Transaction{}, fmt.Errorf("tx hash: %w", err)
	}
	switch r.Status {
	case txcache.StatusSuccessful, txcache.StatusPending, txcache.StatusFailed:
	default:
		return txcache.Transaction{}, fmt.Errorf("tx %s: unknown state %q", r.Hash, r.Status)
	}
	t := txcache.Transaction{
		ID:            id,
		Status:        r.Status,
		Fee:           r.Fee,
		BlockNum:      r.BlockNum,
		TxOrdinal:     r.TxOrdinal,
		BlockHash:     r.BlockHash,
		SubmittedAt:   r.SubmittedAt,
		LastUpdatedAt: r.LastUpdate,
	}
	for _, in := range r.Inputs {
		h, err := types.HexToHash(in.TxHash)
		if err != nil {
			return txcache.Transaction{}, fmt.Errorf("tx %s input: %w", r.Hash, err)
		}
		amount, err := assetsValue(in.Amount, in.Assets)
		if err != nil {
			return txcache.Transaction{}, fmt.Errorf("tx %s input: %w", r.Hash, err)
		}
		t.Inputs = append(t.Inputs, txcache.Input{Address: in.Address, Amount: amount, TxHash: h, Index: in.Index})
	}
	for _, out := range r.Outputs {
		amount, err := assetsValue(out.Amount, out.Assets)
		if err != nil {
			return txcache.Transaction{}, fmt.Errorf("tx %s output: %w", r.Hash, err)
		}
		t.Outputs = append(t.Outputs, txcache.Output{Address: out.Address, Amount: amount})
	}
	for _, c := range r.Certificates {
		t.Certificates = append(t.Certificates, txcache.Certificate{
			Kind:          c.Kind,
			RewardAddress: c.RewardAddress,
			PoolKeyHash:   c.PoolKeyHash,
			CertIndex:     c.CertIndex,
		})
	}
	for _, w := range r.Withdrawals {
		t.Withdrawals = append(t.Withdrawals, txcache.Withdrawal{Address: w.Address, Amount: w.Amount})
	}
	return t, nil
}

// AccountState is the state of one reward address.
type AccountState struct {
	Registered      bool    `json:"isRegistered"`
	RemainingAmount uint64  `json:"remainingAmount,string"`
	Rewards         uint64  `json:"rewards,string"`
	Withdrawals     uint64  `json:"withdrawals,string"`
	PoolOperator    *string `json:"poolOperator"`
}

// PoolInfo is a stake pool's registered metadata.
type PoolInfo struct {
	Name        string `json:"name"`
	Ticker      string `json:"ticker"`
	Description string `json:"description"`
	Homepage    string `json:"homepage"`
}

// TokenInfo is a native asset's registered metadata.
type TokenInfo struct {
	Name     string `json:"name"`
	Ticker   string `json:"ticker"`
	Decimals int    `json:"decimals"`
}

// Fund is a voting fund's schedule.
type Fund struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	RegistrationStart time.Time `json:"registrationStart"`
	RegistrationEnd   time.Time `json:"registrationEnd"`
	VotingStart       time.Time `json:"votingStart"`
	VotingEnd         time.Time `json:"votingEnd"`
}

// FundInfo describes the current and next voting funds.
type FundInfo struct {
	CurrentFund *Fund `json:"currentFund"`
	NextFund    *Fund `json:"nextFund"`
}

// BestBlock is the chain tip.
type BestBlock struct {
	Epoch      uint64 `json:"epoch"`
	Slot       uint64 `json:"slot"`
	GlobalSlot uint64 `json:"globalSlot"`
	Hash       string `json:"hash"`
	Height     uint64 `json:"height"`
}

// ServerStatus is the backend's health report.
type ServerStatus struct {
	IsServerOK    bool  `json:"isServerOk"`
	IsMaintenance bool  `json:"isMaintenance"`
	ServerTime    int64 `json:"serverTime"`
}

// Time returns the server clock, or zero when the server did not report it.
func (s ServerStatus) Time() time.Time {
	if s.ServerTime == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.ServerTime).UTC()
}
