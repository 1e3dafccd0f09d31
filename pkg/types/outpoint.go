package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Outpoint references a specific output of a transaction.
type Outpoint struct {
	TxHash  Hash   `json:"tx_hash"`
	TxIndex uint32 `json:"tx_index"`
}

// String returns "txhash:index".
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash.String(), o.TxIndex)
}

// ParseOutpoint parses the "txhash:index" form produced by String.
func ParseOutpoint(s string) (Outpoint, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return Outpoint{}, fmt.Errorf("outpoint %q: missing index", s)
	}
	h, err := HexToHash(s[:i])
	if err != nil {
		return Outpoint{}, fmt.Errorf("outpoint %q: %w", s, err)
	}
	idx, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return Outpoint{}, fmt.Errorf("outpoint %q: %w", s, err)
	}
	return Outpoint{TxHash: h, TxIndex: uint32(idx)}, nil
}

// Utxo is a spendable output owned by one of the wallet's addresses.
type Utxo struct {
	Outpoint
	Receiver string `json:"receiver"`
	Amount   Value  `json:"amount"`
}

// ID returns the outpoint string used as the UTXO's identity.
func (u Utxo) ID() string {
	return u.Outpoint.String()
}
