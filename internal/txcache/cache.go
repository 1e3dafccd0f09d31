package txcache

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/rs/zerolog"
)

// ErrInvalidTransaction is returned by Update for a record without an id
// or with an unknown status.
var ErrInvalidTransaction = errors.New("invalid transaction record")

// CertificateRecord is a certificate positioned in the chain.
type CertificateRecord struct {
	Certificate
	TxHash    types.Hash `json:"txHash"`
	BlockNum  uint64     `json:"blockNum"`
	TxOrdinal int        `json:"txOrdinal"`
}

// Cache holds a wallet's transaction history.
//
// Cache does no locking. Callers serialize access per wallet.
type Cache struct {
	txs         map[types.Hash]*Transaction
	perAddress  map[string][]types.Hash
	perReward   map[string][]CertificateRecord
	lastUpdated time.Time

	logger zerolog.Logger
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		txs:        make(map[types.Hash]*Transaction),
		perAddress: make(map[string][]types.Hash),
		perReward:  make(map[string][]CertificateRecord),
		logger:     log.Cache,
	}
}

// Update merges txs into the cache, replacing records with the same id.
// The merge is all-or-nothing: if any record is invalid the cache is
// unchanged.
func (c *Cache) Update(txs []Transaction) error {
	next := make(map[types.Hash]*Transaction, len(c.txs)+len(txs))
	for id, tx := range c.txs {
		next[id] = tx
	}
	last := c.lastUpdated
	for i := range txs {
		tx := &txs[i]
		if tx.ID.IsZero() {
			return fmt.Errorf("%w: record %d has no id", ErrInvalidTransaction, i)
		}
		switch tx.Status {
		case StatusSuccessful, StatusPending, StatusFailed:
		default:
			return fmt.Errorf("%w: %s has status %q", ErrInvalidTransaction, tx.ID, tx.Status)
		}
		next[tx.ID] = tx.clone()
		if tx.LastUpdatedAt.After(last) {
			last = tx.LastUpdatedAt
		}
	}

	c.txs = next
	c.lastUpdated = last
	c.reindex()
	c.logger.Debug().Int("count", len(txs)).Int("total", len(c.txs)).Msg("Cache updated")
	return nil
}

// AddPending records a transaction the wallet just submitted. A later
// Update carrying the same id replaces it. A record with a TTL is dropped
// by ExpirePending once the chain passes it unconfirmed.
func (c *Cache) AddPending(tx Transaction) error {
	if tx.ID.IsZero() {
		return fmt.Errorf("%w: pending record has no id", ErrInvalidTransaction)
	}
	if _, ok := c.txs[tx.ID]; ok {
		return nil
	}
	tx.Status = StatusPending
	if tx.SubmittedAt.IsZero() {
		tx.SubmittedAt = time.Now().UTC()
	}
	next := make(map[types.Hash]*Transaction, len(c.txs)+1)
	for id, t := range c.txs {
		next[id] = t
	}
	next[tx.ID] = tx.clone()
	c.txs = next
	c.reindex()
	return nil
}

// ExpirePending drops pending records whose TTL lies before slot. Their
// inputs become spendable again. It returns the ids it dropped.
func (c *Cache) ExpirePending(slot uint64) []types.Hash {
	var expired []types.Hash
	for id, tx := range c.txs {
		if tx.Status == StatusPending && tx.TTL > 0 && tx.TTL < slot {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	next := make(map[types.Hash]*Transaction, len(c.txs))
	for id, tx := range c.txs {
		next[id] = tx
	}
	for _, id := range expired {
		delete(next, id)
		c.logger.Info().Str("tx", id.String()).Uint64("slot", slot).Msg("Pending transaction expired")
	}
	c.txs = next
	c.reindex()
	sort.Slice(expired, func(i, j int) bool { return expired[i].String() < expired[j].String() })
	return expired
}

// ResetState drops all derived history. The next sync starts from scratch.
func (c *Cache) ResetState() {
	c.txs = make(map[types.Hash]*Transaction)
	c.perAddress = make(map[string][]types.Hash)
	c.perReward = make(map[string][]CertificateRecord)
	c.lastUpdated = time.Time{}
	c.logger.Info().Msg("Transaction cache reset")
}

func (c *Cache) reindex() {
	ordered := c.ordered()
	perAddress := make(map[string][]types.Hash)
	perReward := make(map[string][]CertificateRecord)
	for _, tx := range ordered {
		for _, a := range tx.Addresses() {
			perAddress[a] = append(perAddress[a], tx.ID)
		}
		if !tx.Confirmed() {
			continue
		}
		certs := append([]Certificate(nil), tx.Certificates...)
		sort.SliceStable(certs, func(i, j int) bool { return certs[i].CertIndex < certs[j].CertIndex })
		for _, cert := range certs {
			perReward[cert.RewardAddress] = append(perReward[cert.RewardAddress], CertificateRecord{
				Certificate: cert,
				TxHash:      tx.ID,
				BlockNum:    tx.BlockNum,
				TxOrdinal:   tx.TxOrdinal,
			})
		}
	}
	c.perAddress = perAddress
	c.perReward = perReward
}

func (c *Cache) ordered() []*Transaction {
	out := make([]*Transaction, 0, len(c.txs))
	for _, tx := range c.txs {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}

// Transactions returns copies of all records in chain order.
func (c *Cache) Transactions() []Transaction {
	ordered := c.ordered()
	out := make([]Transaction, len(ordered))
	for i, tx := range ordered {
		out[i] = *tx.clone()
	}
	return out
}

// Get returns the record with id.
func (c *Cache) Get(id types.Hash) (Transaction, bool) {
	tx, ok := c.txs[id]
	if !ok {
		return Transaction{}, false
	}
	return *tx.clone(), true
}

// Len returns the number of records.
func (c *Cache) Len() int { return len(c.txs) }

// PerAddressTxs returns the ids of transactions touching addr in chain order.
func (c *Cache) PerAddressTxs(addr string) []types.Hash {
	return append([]types.Hash(nil), c.perAddress[addr]...)
}

// Certificates returns the confirmed certificates of a reward address
// ordered by block, transaction ordinal and certificate index.
func (c *Cache) Certificates(rewardAddress string) []CertificateRecord {
	return append([]CertificateRecord(nil), c.perReward[rewardAddress]...)
}

// LastUpdated returns the newest LastUpdatedAt seen, the sync point for
// the next history request.
func (c *Cache) LastUpdated() time.Time { return c.lastUpdated }

// Utxos derives the spendable outputs of addresses isMine accepts:
// outputs of successful transactions not spent by a successful or pending
// one. Outputs of pending transactions do not exist on chain yet and are
// withheld until a sync confirms them.
func (c *Cache) Utxos(isMine func(string) bool) []types.Utxo {
	spent := make(map[types.Outpoint]bool)
	for _, tx := range c.txs {
		if tx.Status == StatusFailed {
			continue
		}
		for _, in := range tx.Inputs {
			spent[in.Outpoint()] = true
		}
	}

	var out []types.Utxo
	for _, tx := range c.ordered() {
		if tx.Status != StatusSuccessful {
			continue
		}
		for i, o := range tx.Outputs {
			op := types.Outpoint{TxHash: tx.ID, TxIndex: uint32(i)}
			if spent[op] || !isMine(o.Address) {
				continue
			}
			out = append(out, types.Utxo{Outpoint: op, Receiver: o.Address, Amount: o.Amount.Clone()})
		}
	}
	return out
}
