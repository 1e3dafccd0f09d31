package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingwallet/internal/txcache"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"golang.org/x/sync/errgroup"
)

// maxParallelChunks bounds concurrent requests of one chunked call.
const maxParallelChunks = 4

type addressesRequest struct {
	Addresses []string `json:"addresses"`
}

// fanOut runs fn once per chunk of addrs and returns the results in chunk
// order. The first failure cancels the remaining requests.
func fanOut[T any](ctx context.Context, addrs []string, size int, fn func(context.Context, []string) ([]T, error)) ([]T, error) {
	chunks := chunk(addrs, size)
	results := make([][]T, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelChunks)
	for i, c := range chunks {
		g.Go(func() error {
			r, err := fn(gctx, c)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []T
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// FetchUTXOs returns the unspent outputs of addrs, querying at most
// FetchUTXOsMaxAddresses addresses per request.
func (c *Client) FetchUTXOs(ctx context.Context, addrs []string) ([]types.Utxo, error) {
	raw, err := fanOut(ctx, addrs, c.limits.FetchUTXOsMaxAddresses, func(ctx context.Context, chunk []string) ([]RawUtxo, error) {
		var resp []RawUtxo
		if err := c.post(ctx, "txs/utxoForAddresses", addressesRequest{Addresses: chunk}, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	utxos := make([]types.Utxo, 0, len(raw))
	for _, r := range raw {
		u, err := r.Utxo()
		if err != nil {
			return nil, fmt.Errorf("txs/utxoForAddresses: %w", err)
		}
		utxos = append(utxos, u)
	}
	c.logger.Debug().Int("addresses", len(addrs)).Int("count", len(utxos)).Msg("Fetched UTXOs")
	return utxos, nil
}

// FilterUsedAddresses returns the addresses of addrs that appear on chain,
// in their original order.
func (c *Client) FilterUsedAddresses(ctx context.Context, addrs []string) ([]string, error) {
	input := append([]string(nil), addrs...)
	used, err := fanOut(ctx, input, c.limits.FilterUsedMaxAddresses, func(ctx context.Context, chunk []string) ([]string, error) {
		var resp []string
		if err := c.post(ctx, "addresses/filterUsed", addressesRequest{Addresses: chunk}, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(used))
	for _, a := range used {
		seen[a] = true
	}
	out := make([]string, 0, len(used))
	for _, a := range input {
		if seen[a] {
			out = append(out, a)
		}
	}
	return out, nil
}

type historyRequest struct {
	Addresses []string  `json:"addresses"`
	DateFrom  time.Time `json:"dateFrom"`
}

// FetchTxHistory returns the transactions touching addrs updated after
// since. Each address chunk is paged until a short page.
func (c *Client) FetchTxHistory(ctx context.Context, addrs []string, since time.Time) ([]txcache.Transaction, error) {
	raw, err := fanOut(ctx, addrs, c.limits.TxHistoryMaxAddresses, func(ctx context.Context, chunk []string) ([]RawTx, error) {
		return c.historyPages(ctx, chunk, since)
	})
	if err != nil {
		return nil, err
	}

	// Chunks overlap on transactions between their addresses. Keep the
	// freshest record of each.
	byID := make(map[types.Hash]txcache.Transaction, len(raw))
	var order []types.Hash
	for _, r := range raw {
		t, err := r.Transaction()
		if err != nil {
			return nil, fmt.Errorf("txs/history: %w", err)
		}
		prev, ok := byID[t.ID]
		if !ok {
			order = append(order, t.ID)
		}
		if !ok || !t.LastUpdatedAt.Before(prev.LastUpdatedAt) {
			byID[t.ID] = t
		}
	}
	txs := make([]txcache.Transaction, 0, len(order))
	for _, id := range order {
		txs = append(txs, byID[id])
	}
	c.logger.Debug().Int("addresses", len(addrs)).Int("count", len(txs)).Msg("Fetched history")
	return txs, nil
}

func (c *Client) historyPages(ctx context.Context, addrs []string, since time.Time) ([]RawTx, error) {
	limit := c.limits.TxHistoryResponseLimit
	var all []RawTx
	cursor := since
	for {
		var page []RawTx
		if err := c.post(ctx, "txs/history", historyRequest{Addresses: addrs, DateFrom: cursor}, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if limit <= 0 || len(page) < limit {
			return all, nil
		}
		next := cursor
		for _, t := range page {
			if t.LastUpdate.After(next) {
				next = t.LastUpdate
			}
		}
		if !next.After(cursor) {
			return nil, fmt.Errorf("txs/history: page of %d does not advance past %s", len(page), cursor.Format(time.RFC3339))
		}
		cursor = next
	}
}

type submitRequest struct {
	SignedTx string `json:"signedTx"`
}

// SubmitTransaction sends encoded signed transaction bytes.
func (c *Client) SubmitTransaction(ctx context.Context, signed []byte) error {
	if err := c.post(ctx, "txs/signed", submitRequest{SignedTx: base64.StdEncoding.EncodeToString(signed)}, nil); err != nil {
		return err
	}
	c.logger.Info().Int("size", len(signed)).Msg("Transaction submitted")
	return nil
}

// AccountStates returns the state of each reward address. Addresses the
// backend has never seen map to nil.
func (c *Client) AccountStates(ctx context.Context, rewardAddrs []string) (map[string]*AccountState, error) {
	var resp map[string]*AccountState
	if err := c.post(ctx, "account/state", addressesRequest{Addresses: rewardAddrs}, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]*AccountState, len(rewardAddrs))
	for _, a := range rewardAddrs {
		out[a] = resp[a]
	}
	return out, nil
}

// AccountState returns the state of one reward address.
func (c *Client) AccountState(ctx context.Context, rewardAddr string) (*AccountState, error) {
	states, err := c.AccountStates(ctx, []string{rewardAddr})
	if err != nil {
		return nil, err
	}
	return states[rewardAddr], nil
}

type poolInfoRequest struct {
	PoolIDs []string `json:"poolIds"`
}

// PoolInfo returns metadata for pool ids. Known pools are served from
// cache; pools the backend does not know are absent from the result.
func (c *Client) PoolInfo(ctx context.Context, ids []string) (map[string]PoolInfo, error) {
	out := make(map[string]PoolInfo, len(ids))
	var missing []string
	for _, id := range ids {
		if info, ok := c.pools.Get(id); ok {
			out[id] = info
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	var resp map[string]*PoolInfo
	if err := c.post(ctx, "pool/info", poolInfoRequest{PoolIDs: missing}, &resp); err != nil {
		return nil, err
	}
	for _, id := range missing {
		if info := resp[id]; info != nil {
			c.pools.Add(id, *info)
			out[id] = *info
		}
	}
	return out, nil
}

type tokenInfoRequest struct {
	TokenIDs []string `json:"tokenIds"`
}

// TokenInfo returns metadata for asset ids, cached like PoolInfo.
func (c *Client) TokenInfo(ctx context.Context, ids []types.AssetID) (map[types.AssetID]TokenInfo, error) {
	out := make(map[types.AssetID]TokenInfo, len(ids))
	var missing []string
	for _, id := range ids {
		if info, ok := c.tokens.Get(string(id)); ok {
			out[id] = info
		} else {
			missing = append(missing, string(id))
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	var resp map[string]*TokenInfo
	if err := c.post(ctx, "tokens/info", tokenInfoRequest{TokenIDs: missing}, &resp); err != nil {
		return nil, err
	}
	for _, id := range missing {
		if info := resp[id]; info != nil {
			c.tokens.Add(id, *info)
			out[types.AssetID(id)] = *info
		}
	}
	return out, nil
}

// FundInfo returns the voting fund schedule.
func (c *Client) FundInfo(ctx context.Context) (*FundInfo, error) {
	var info FundInfo
	if err := c.get(ctx, "v0/catalyst/fundInfo", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// BestBlock returns the chain tip.
func (c *Client) BestBlock(ctx context.Context) (*BestBlock, error) {
	var b BestBlock
	if err := c.get(ctx, "v2/bestblock", &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ServerStatus returns the backend's health report.
func (c *Client) ServerStatus(ctx context.Context) (*ServerStatus, error) {
	var s ServerStatus
	if err := c.get(ctx, "status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}
